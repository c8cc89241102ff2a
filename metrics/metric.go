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

// Package metrics provides runtime monitoring counters for the kqueue
// emulation library, such as poll-loop efficiency and per-filter event
// volume, useful for performance tuning.
package metrics

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// All metrics definitions.
const (
	// EVFILT_READ
	ReadEvents = iota
	ReadKnotesActive

	// EVFILT_WRITE
	WriteEvents
	WriteKnotesActive

	// EVFILT_SIGNAL
	SignalEvents
	SignalfdReads

	// EVFILT_TIMER
	TimerEvents
	TimerfdFires

	// EVFILT_VNODE
	VnodeEvents
	InotifyReads

	// EVFILT_PROC
	ProcEvents
	WaitidCalls

	// EVFILT_USER
	UserEvents
	UserTriggers

	// poll loop
	PollWait
	PollNoWait
	PollEvents
	TaskAssigned
	Max
)

var (
	metrics [Max]atomic.Uint64
)

// Add metrics counter.
func Add(name int, delta uint64) {
	if name >= Max {
		return
	}
	metrics[name].Add(delta)
}

// Get one metric counter.
func Get(name int) uint64 {
	if name >= Max {
		return 0
	}
	return metrics[name].Load()
}

// GetAll get all metrics.
func GetAll() [Max]uint64 {
	var m [Max]uint64
	for i := range metrics {
		m[i] = metrics[i].Load()
	}
	return m
}

// ShowMetricsOfPeriod shows metric info of duration d from now on.
// It will block d duration, and then prints metrics info.
func ShowMetricsOfPeriod(d time.Duration) {
	old := GetAll()
	<-time.After(d)
	new := GetAll()
	var m [Max]uint64
	for i := range metrics {
		m[i] = new[i] - old[i]
	}
	showAll(m)
}

// ShowMetrics shows metric info in console.
func ShowMetrics() {
	m := GetAll()
	showAll(m)
}

func showAll(m [Max]uint64) {
	fmt.Println("######### kqueue metrics (", time.Now().Format("2006-01-02 15:04:05"), ") ###########")
	showFilterMetrics(m)
	showPollMetrics(m)
	fmt.Printf("%-59s: %d\n", "# number of task assigned (notifypool)", m[TaskAssigned])
	fmt.Printf("\n")
}

func showFilterMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# READ - events delivered", m[ReadEvents])
	fmt.Printf("%-59s: %d\n", "# READ - active knotes", m[ReadKnotesActive])
	fmt.Printf("%-59s: %d\n", "# WRITE - events delivered", m[WriteEvents])
	fmt.Printf("%-59s: %d\n", "# WRITE - active knotes", m[WriteKnotesActive])
	fmt.Printf("%-59s: %d\n", "# SIGNAL - events delivered", m[SignalEvents])
	fmt.Printf("%-59s: %d\n", "# SIGNAL - signalfd reads", m[SignalfdReads])
	fmt.Printf("%-59s: %d\n", "# TIMER - events delivered", m[TimerEvents])
	fmt.Printf("%-59s: %d\n", "# TIMER - timerfd fires", m[TimerfdFires])
	fmt.Printf("%-59s: %d\n", "# VNODE - events delivered", m[VnodeEvents])
	fmt.Printf("%-59s: %d\n", "# VNODE - inotify reads", m[InotifyReads])
	fmt.Printf("%-59s: %d\n", "# PROC - events delivered", m[ProcEvents])
	fmt.Printf("%-59s: %d\n", "# PROC - waitid calls", m[WaitidCalls])
	fmt.Printf("%-59s: %d\n", "# USER - events delivered", m[UserEvents])
	fmt.Printf("%-59s: %d\n", "# USER - NOTE_TRIGGER requests", m[UserTriggers])
}

func showPollMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# POLL - number of epoll_wait returns (tag:b)", m[PollWait])
	fmt.Printf("%-59s: %d\n", "# POLL - number of epoll_wait called with msc=0 (tag:a)", m[PollNoWait])
	fmt.Printf("%-59s: %d\n", "# POLL - number of total events", m[PollEvents])
	if (m[PollWait]) > 0 {
		fmt.Printf("%-59s: %.2f%%\n", "# POLL - a/b * 100%", float32(m[PollNoWait])*100/float32(m[PollWait]))
		fmt.Printf("%-59s: %.2f\n", "# POLL - average events number per epoll_wait",
			float32(m[PollEvents])/float32(m[PollWait]))
	}
}
