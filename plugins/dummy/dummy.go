// Package dummy implements a minimal pass-through Plugin used as a chain
// terminus in tests and trivial configurations: it observes every frame
// without transforming it.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package dummy

import (
	"sync"

	"github.com/odin-detector/odin-data-sub001/cmn/atomic"
	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/plugin"
)

type Plugin struct {
	name string

	framesSeen atomic.Int64

	mu   sync.Mutex
	last frame.Metadata
}

func New(name string) *Plugin { return &Plugin{name: name} }

func (p *Plugin) Name() string { return p.name }

func (p *Plugin) ProcessFrame(f *frame.Frame) {
	p.framesSeen.Inc()
	p.mu.Lock()
	p.last = f.Metadata
	p.mu.Unlock()
}

func (p *Plugin) Configure(*ipc.Envelope) error { return nil }

func (p *Plugin) RequestConfiguration(reply *ipc.Envelope) {}

func (p *Plugin) Status(reply *ipc.Envelope) {
	ipc.SetParam(reply, p.name+"/frames_seen", p.framesSeen.Load())
}

func (p *Plugin) Version() plugin.Version {
	return plugin.Version{Major: 1, Minor: 0, Patch: 0, Short: "1.0.0", Long: "dummy-1.0.0"}
}

func (p *Plugin) ResetStatistics() { p.framesSeen.Store(0) }

// LastDatasetName reports the most recently seen Frame's dataset name,
// for tests that need to observe the terminal state of the chain.
func (p *Plugin) LastDatasetName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last.DatasetName
}

// FramesSeen exposes the running frame count for tests.
func (p *Plugin) FramesSeen() int64 { return p.framesSeen.Load() }
