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

//go:build linux
// +build linux

package backend_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mheily/go-kqueue/internal/backend"
)

func newTestBackend(t *testing.T) backend.Backend {
	b, err := backend.New(false)
	require.Nil(t, err)
	go b.Wait()
	return b
}

func TestDesc(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()
	eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	require.Nil(t, err)
	defer unix.Close(eventFD)
	desc := backend.NewDesc(b)
	desc.FD = eventFD
	assert.Nil(t, desc.Control(backend.Readable))
	assert.Nil(t, desc.Control(backend.ModWritable))
	assert.Nil(t, desc.Close())
}

func TestNormal(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()
	eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	require.Nil(t, err)
	defer unix.Close(eventFD)
	var onRead, onHup int
	desc := backend.NewDesc(b)
	desc.FD = eventFD
	desc.Data = 1
	ch := make(chan struct{}, 1)
	desc.OnRead = func(_ interface{}) error {
		onRead++
		ch <- struct{}{}
		buf := make([]byte, 8)
		unix.Read(eventFD, buf)
		return nil
	}
	hup := make(chan struct{}, 1)
	desc.OnHup = func(_ interface{}) {
		onHup = 1
		hup <- struct{}{}
	}

	require.Nil(t, desc.Control(backend.Readable))
	buf := []byte{1, 0, 0, 0, 0, 0, 0, 0}
	n, err := unix.Write(eventFD, buf)
	assert.Nil(t, err)
	assert.Equal(t, n, len(buf))
	<-ch
	assert.Equal(t, onRead, 1)
	desc.OnRead = func(_ interface{}) error {
		return errors.New("fake fails")
	}
	_, err = unix.Write(eventFD, buf)
	assert.Nil(t, err)
	<-hup
	assert.Equal(t, onHup, 1)
}

func TestClientClose(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()
	eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	require.Nil(t, err)
	desc := backend.NewDesc(b)
	desc.FD = eventFD
	require.Nil(t, desc.Control(backend.Readable))
	unix.Close(eventFD)
	require.NotNil(t, desc.Close())
}

func TestDescEvent(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()
	newDesc := func(t *testing.T) (*backend.Desc, int) {
		eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
		require.Nil(t, err)
		desc := backend.NewDesc(b)
		desc.FD = eventFD
		return desc, eventFD
	}
	t.Run("Readable", func(t *testing.T) {
		desc, fd := newDesc(t)
		defer unix.Close(fd)
		assert.Nil(t, desc.Control(backend.Readable))
		assert.Nil(t, desc.Close())
	})
	t.Run("Writable", func(t *testing.T) {
		desc, fd := newDesc(t)
		defer unix.Close(fd)
		assert.Nil(t, desc.Control(backend.Writable))
		assert.Nil(t, desc.Close())
	})
	t.Run("ReadWriteable", func(t *testing.T) {
		desc, fd := newDesc(t)
		defer unix.Close(fd)
		assert.Nil(t, desc.Control(backend.ReadWriteable))
		assert.Nil(t, desc.Close())
	})
	t.Run("ModReadable", func(t *testing.T) {
		desc, fd := newDesc(t)
		defer unix.Close(fd)
		assert.Nil(t, desc.Control(backend.Readable))
		assert.Nil(t, desc.Control(backend.ModReadable))
		assert.Nil(t, desc.Close())
	})
	t.Run("ModWritable", func(t *testing.T) {
		desc, fd := newDesc(t)
		defer unix.Close(fd)
		assert.Nil(t, desc.Control(backend.Writable))
		assert.Nil(t, desc.Control(backend.ModWritable))
		assert.Nil(t, desc.Close())
	})
	t.Run("ModReadWriteable", func(t *testing.T) {
		desc, fd := newDesc(t)
		defer unix.Close(fd)
		assert.Nil(t, desc.Control(backend.Writable))
		assert.Nil(t, desc.Control(backend.ModReadWriteable))
		assert.Nil(t, desc.Close())
	})
	t.Run("Detach", func(t *testing.T) {
		desc, fd := newDesc(t)
		defer unix.Close(fd)
		assert.Nil(t, desc.Control(backend.Writable))
		assert.Nil(t, desc.Control(backend.Detach))
	})
}
