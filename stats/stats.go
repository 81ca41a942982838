// Package stats exposes the receiver and processor's running counters as
// Prometheus metrics, grounded on the counter-naming convention used
// throughout the teacher's own target/proxy stats (component_metric,
// snake_case, a "od_" prefix standing in for its "ais_").
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odin-detector/odin-data-sub001/decoder"
)

const namespace = "od"

// RxRegistry wires decoder.Counters onto a dedicated prometheus.Registry
// for the receiver process.
type RxRegistry struct {
	reg      *prometheus.Registry
	counters *decoder.Counters

	packetsReceived  prometheus.CounterFunc
	packetsLost      prometheus.CounterFunc
	packetsDropped   prometheus.CounterFunc
	packetsDuplicate prometheus.CounterFunc
	framesTimedOut   prometheus.CounterFunc
	framesDropped    prometheus.CounterFunc
	emptyBuffers     prometheus.GaugeFunc
}

// NewRxRegistry builds a registry that reads directly off counters and
// emptyBuffers on every scrape - no separate bookkeeping, so the exposed
// numbers can never drift from the decoder's own state.
func NewRxRegistry(counters *decoder.Counters, emptyBuffers func() int) *RxRegistry {
	r := &RxRegistry{reg: prometheus.NewRegistry(), counters: counters}

	mk := func(name, help string, f func() float64) prometheus.CounterFunc {
		c := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rx", Name: name, Help: help,
		}, f)
		r.reg.MustRegister(c)
		return c
	}

	r.packetsReceived = mk("packets_received_total", "UDP packets accepted into a tracked frame.", func() float64 { return float64(counters.PacketsReceived.Load()) })
	r.packetsLost = mk("packets_lost_total", "Packets never received before their frame timed out or completed short.", func() float64 { return float64(counters.PacketsLost.Load()) })
	r.packetsDropped = mk("packets_dropped_total", "Packets for an untracked (drop-mode) frame.", func() float64 { return float64(counters.PacketsDropped.Load()) })
	r.packetsDuplicate = mk("packets_duplicate_total", "Packets recognized as re-delivery of an already-seen index.", func() float64 { return float64(counters.PacketsDuplicate.Load()) })
	r.framesTimedOut = mk("frames_timed_out_total", "Frames that exceeded frame_timeout_ms before completing.", func() float64 { return float64(counters.FramesTimedOut.Load()) })
	r.framesDropped = mk("frames_dropped_total", "Frames that could never be tracked for lack of an empty slot.", func() float64 { return float64(counters.FramesDropped.Load()) })

	r.emptyBuffers = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "rx", Name: "empty_buffers", Help: "Slots currently available for a new frame.",
	}, func() float64 { return float64(emptyBuffers()) })
	r.reg.MustRegister(r.emptyBuffers)

	return r
}

func (r *RxRegistry) Registry() *prometheus.Registry { return r.reg }

// PluginInboxDepth is a per-plugin gauge the processor registers once per
// loaded plugin node, reporting its worker inbox queue depth.
type PluginInboxDepth struct {
	reg    *prometheus.Registry
	gauges map[string]prometheus.GaugeFunc
}

func NewPluginInboxDepth() *PluginInboxDepth {
	return &PluginInboxDepth{reg: prometheus.NewRegistry(), gauges: map[string]prometheus.GaugeFunc{}}
}

// Register wires a plugin's inbox depth accessor into the registry. Calling
// it twice for the same name replaces the earlier gauge (plugin reload).
func (p *PluginInboxDepth) Register(pluginName string, depth func() int) {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "plugin", Name: "inbox_depth",
		Help:        "Frames queued on this plugin's worker inbox.",
		ConstLabels: prometheus.Labels{"plugin": pluginName},
	}, func() float64 { return float64(depth()) })
	if old, ok := p.gauges[pluginName]; ok {
		p.reg.Unregister(old)
	}
	p.gauges[pluginName] = g
	p.reg.MustRegister(g)
}

func (p *PluginInboxDepth) Registry() *prometheus.Registry { return p.reg }
