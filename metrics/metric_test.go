// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package metrics_test

import (
	"testing"
	"time"

	"github.com/mheily/go-kqueue/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	metrics.Add(metrics.ReadEvents, 1)
	assert.Equal(t, uint64(1), metrics.Get(metrics.ReadEvents))
	metrics.Add(metrics.ReadEvents, 1)
	assert.Equal(t, uint64(2), metrics.Get(metrics.ReadEvents))
	metrics.Add(metrics.Max+1, 1)
	metrics.Add(metrics.PollNoWait, 8)
	metrics.Add(metrics.PollWait, 9)
	metrics.Add(metrics.PollEvents, 99)
	metrics.Add(metrics.WriteEvents, 191)
	metrics.Add(metrics.TimerfdFires, 1191)
	metrics.Add(metrics.SignalEvents, 191)
	metrics.Add(metrics.ProcEvents, 1191)
	assert.Equal(t, uint64(0), metrics.Get(metrics.Max+1))
	metrics.ShowMetrics()
	metrics.ShowMetricsOfPeriod(time.Millisecond)
}
