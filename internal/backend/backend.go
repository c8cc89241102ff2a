// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package backend adapts the host's native event-notification facility
// (epoll on Linux) into the fd-plus-callback shape the filter
// implementations need: register a descriptor, get a callback invoked when
// it becomes readable, writable, or hangs up.
package backend

import "fmt"

// Event defines the operation passed to Backend.Control.
type Event int

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e {
	case Readable:
		return "Readable"
	case ModReadable:
		return "ModReadable"
	case Writable:
		return "Writable"
	case ModWritable:
		return "ModWritable"
	case ReadWriteable:
		return "ReadWriteable"
	case ModReadWriteable:
		return "ModReadWriteable"
	case Detach:
		return "Detach"
	default:
		return fmt.Sprintf("Event(%d)", e)
	}
}

// Job is the task argument of Backend.Trigger. The epoll backend does not
// run it.
type Job func() error

// Constants for Backend.Control.
const (
	Readable Event = iota
	ModReadable
	Writable
	ModWritable
	ReadWriteable
	ModReadWriteable
	Detach
)

// Backend monitors file descriptors and invokes the callbacks set on a
// registered Desc when the corresponding readiness event occurs. One
// Backend instance backs one kqueue object, mirroring BSD kqueue's
// one-kqueue-one-fd model instead of a connection pool shared across many
// goroutines.
type Backend interface {
	// Wait polls all registered Desc and invokes their callbacks. It blocks
	// until Close is called.
	Wait() error

	// Close closes the backend and stops Wait.
	Close() error

	// Trigger wakes Wait up out of a blocking poll. The epoll backend
	// discards the Job argument.
	Trigger(Job) error

	// Control registers or updates the event a Desc is monitored for.
	Control(*Desc, Event) error
}
