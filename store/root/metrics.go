// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package root

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics mirrors the teacher's storage/disk/metrics.go registration
// pattern: a small set of counters/histograms describing lookup traffic
// and cache effectiveness, scoped to one RootStorage instance.
type metrics struct {
	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &metrics{
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "substrate_root_lookups_total",
			Help: "Count of RootStorage.Lookup calls by cache result.",
		}, []string{"result"}),
		lookupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "substrate_root_lookup_duration_seconds",
			Help:    "Latency of RootStorage.Lookup resolution.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
