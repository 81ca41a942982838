// Package paramadjust implements a Plugin that adds a configured delta to
// a set of named frame parameters, keyed off the frame number, adding the
// parameter if it doesn't already exist.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package paramadjust

import (
	"sync"

	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/plugin"
)

const (
	configFirstFrame = "first_frame"
	configParameter  = "parameter"
	configAdjustment = "adjustment"
)

const defaultFirstFrame = 0

// Plugin applies a per-parameter integer adjustment once the chain
// reaches a configured first frame number, then on every frame after.
type Plugin struct {
	name string

	mu               sync.Mutex
	firstFrameNumber uint32
	configured       map[string]int64 // staged via Configure
	current          map[string]int64 // applied once frame_number == firstFrameNumber
}

func New(name string) *Plugin {
	return &Plugin{name: name, firstFrameNumber: defaultFirstFrame, configured: map[string]int64{}, current: map[string]int64{}}
}

func (p *Plugin) Name() string { return p.name }

func (p *Plugin) ProcessFrame(f *frame.Frame) {
	p.mu.Lock()
	if f.FrameNumber == p.firstFrameNumber {
		p.current = make(map[string]int64, len(p.configured))
		for k, v := range p.configured {
			p.current[k] = v
		}
	}
	adjustments := p.current
	p.mu.Unlock()

	for name, delta := range adjustments {
		base := uint64(f.FrameNumber) // an absent parameter starts from the frame number
		if v, err := frame.GetParameter[uint64](f, name); err == nil {
			base = v
		}
		f.SetParameter(name, uint64(int64(base)+delta))
	}
}

func (p *Plugin) Configure(e *ipc.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, err := ipc.GetParam[int64](e, configFirstFrame); err == nil {
		p.firstFrameNumber = uint32(v)
		nlog.Infof("paramadjust %s: first frame set to %d", p.name, v)
	}

	raw, err := e.RawValue(configParameter)
	if err != nil {
		return nil
	}
	params, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	if len(params) == 0 {
		nlog.Infof("paramadjust %s: clearing all parameter adjustments", p.name)
		p.configured = map[string]int64{}
		return nil
	}
	for name, v := range params {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		adj, ok := entry[configAdjustment]
		if !ok {
			continue
		}
		f, ok := adj.(float64)
		if !ok {
			continue
		}
		p.configured[name] = int64(f)
		nlog.Infof("paramadjust %s: adjustment for %q set to %d", p.name, name, int64(f))
	}
	return nil
}

func (p *Plugin) RequestConfiguration(reply *ipc.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ipc.SetParam(reply, p.name+"/"+configFirstFrame, int64(p.firstFrameNumber))
	for name, adj := range p.configured {
		ipc.SetParam(reply, p.name+"/"+configParameter+"/"+name+"/"+configAdjustment, adj)
	}
}

func (p *Plugin) Status(reply *ipc.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ipc.SetParam(reply, p.name+"/active_adjustments", int64(len(p.current)))
}

func (p *Plugin) Version() plugin.Version {
	return plugin.Version{Major: 1, Minor: 0, Patch: 0, Short: "1.0.0", Long: "paramadjust-1.0.0"}
}

func (p *Plugin) ResetStatistics() {}
