// Package offsetadjust implements a Plugin that shifts every passing
// Frame's offset by a fixed, configurable delta.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package offsetadjust

import (
	"sync"

	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/plugin"
)

const configOffsetAdjustment = "offset_adjustment"

// Plugin adjusts frame.Metadata.FrameOffset by a fixed amount on every
// frame it sees; it does not itself guard against the resulting absolute
// offset going negative - that's surfaced by frame.Frame.AbsoluteOffset
// to whichever sink calls it.
type Plugin struct {
	name string

	mu     sync.Mutex
	offset int64
}

func New(name string) *Plugin { return &Plugin{name: name} }

func (p *Plugin) Name() string { return p.name }

func (p *Plugin) ProcessFrame(f *frame.Frame) {
	p.mu.Lock()
	delta := p.offset
	p.mu.Unlock()
	f.AdjustFrameOffset(delta)
}

func (p *Plugin) Configure(e *ipc.Envelope) error {
	v, err := ipc.GetParam[int64](e, configOffsetAdjustment)
	if err != nil {
		return nil // absent: leave current setting untouched
	}
	p.mu.Lock()
	p.offset = v
	p.mu.Unlock()
	nlog.Infof("offsetadjust %s: offset set to %d", p.name, v)
	return nil
}

func (p *Plugin) RequestConfiguration(reply *ipc.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ipc.SetParam(reply, p.name+"/"+configOffsetAdjustment, p.offset)
}

func (p *Plugin) Status(reply *ipc.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ipc.SetParam(reply, p.name+"/"+configOffsetAdjustment, p.offset)
}

func (p *Plugin) Version() plugin.Version {
	return plugin.Version{Major: 1, Minor: 0, Patch: 0, Short: "1.0.0", Long: "offsetadjust-1.0.0"}
}

func (p *Plugin) ResetStatistics() {}
