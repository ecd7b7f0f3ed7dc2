// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// managerMetrics counts plug-in lifecycle transitions, mirroring
// store/root's registration pattern.
type managerMetrics struct {
	installs prometheus.Counter
	loads    prometheus.Counter
	unloads  prometheus.Counter
}

func newManagerMetrics(reg prometheus.Registerer) *managerMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &managerMetrics{
		installs: f.NewCounter(prometheus.CounterOpts{
			Name: "substrate_plugin_installs_total",
			Help: "Count of successful plug-in installs.",
		}),
		loads: f.NewCounter(prometheus.CounterOpts{
			Name: "substrate_plugin_loads_total",
			Help: "Count of successful plug-in loads.",
		}),
		unloads: f.NewCounter(prometheus.CounterOpts{
			Name: "substrate_plugin_unloads_total",
			Help: "Count of plug-in unloads.",
		}),
	}
}
