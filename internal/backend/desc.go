//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 THL A29 Limited, a Tencent company.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package backend

import (
	"errors"
	"sync"
)

// NewDesc allocates a Desc bound to the given Backend.
func NewDesc(b Backend) *Desc {
	d := alloc()
	d.backend = b
	return d
}

// FreeDesc frees a Desc object. The memory is pool-managed; skipping
// FreeDesc leaks an entry in the pool.
func FreeDesc(desc *Desc) {
	markDescFree(desc)
}

// Desc provides the fd and event callbacks the backend invokes when the
// monitored descriptor becomes ready. Timer and user knotes own one Desc
// each; the read/write filter shares one Desc per descriptor between its
// READ and WRITE knotes; the signal and vnode filters own one Desc per
// filter for their signalfd and inotify instance.
type Desc struct {
	mu      sync.RWMutex
	next    *Desc
	backend Backend
	index   int32
	Data    interface{}

	// OnRead is invoked when FD is readable, OnWrite when writable, OnHup
	// when the descriptor hangs up or errors.
	OnRead  func(data interface{}) error
	OnWrite func(data interface{}) error
	OnHup   func(data interface{})

	// FD is the file descriptor monitored by the backend.
	FD int
}

// RLock locks the Desc for reading.
func (p *Desc) RLock() {
	p.mu.RLock()
}

// RUnlock unlocks the Desc for reading.
func (p *Desc) RUnlock() {
	p.mu.RUnlock()
}

// Lock locks the Desc for reading and writing.
func (p *Desc) Lock() {
	p.mu.Lock()
}

// Unlock unlocks the Desc for reading and writing.
func (p *Desc) Unlock() {
	p.mu.Unlock()
}

// Control registers the event that the Desc asks the backend to monitor.
func (p *Desc) Control(event Event) error {
	if p.backend == nil {
		return errors.New("desc not bound to a backend")
	}
	return p.backend.Control(p, event)
}

// Close detaches the Desc from its backend.
func (p *Desc) Close() error {
	return p.backend.Control(p, Detach)
}

func (p *Desc) reset() {
	p.FD = 0
	p.Data = nil
	p.OnRead, p.OnWrite, p.OnHup = nil, nil, nil
	p.backend = nil
}
