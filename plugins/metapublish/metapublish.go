// Package metapublish implements a Plugin that, for every passing Frame,
// publishes the configured frame parameters it carries as uint64 values
// onto the chain's shared meta channel (an empty set if it carries none).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package metapublish

import (
	"sync"

	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/plugin"
)

const (
	configAddParameter = "add_parameter"
	dataFrameNumber    = "frame_number"
	dataParameters     = "parameters"
)

type Publisher func(item string, value any, header map[string]any)

// Plugin has no downstream transform effect on the Frame; it observes a
// configured set of parameters and republishes any present ones on the
// chain's meta side channel instead of a dedicated PUB socket, since the
// chain already gives every plugin that channel for free.
type Plugin struct {
	name    string
	publish Publisher

	mu         sync.Mutex
	parameters map[string]struct{}
}

func New(name string, publish Publisher) *Plugin {
	return &Plugin{name: name, publish: publish, parameters: map[string]struct{}{}}
}

func (p *Plugin) Name() string { return p.name }

func (p *Plugin) ProcessFrame(f *frame.Frame) {
	p.mu.Lock()
	names := make([]string, 0, len(p.parameters))
	for n := range p.parameters {
		names = append(names, n)
	}
	p.mu.Unlock()

	values := make(map[string]any, len(names))
	for _, n := range names {
		if v, err := frame.GetParameter[uint64](f, n); err == nil {
			values[n] = v
		}
	}
	p.publish(dataParameters, values, map[string]any{dataFrameNumber: f.FrameNumber})
}

func (p *Plugin) Configure(e *ipc.Envelope) error {
	name, err := ipc.GetParam[string](e, configAddParameter)
	if err != nil {
		return nil
	}
	p.mu.Lock()
	p.parameters[name] = struct{}{}
	p.mu.Unlock()
	nlog.Infof("metapublish %s: added parameter %q", p.name, name)
	return nil
}

func (p *Plugin) RequestConfiguration(reply *ipc.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n := range p.parameters {
		ipc.SetParam(reply, p.name+"/"+dataParameters+"[]", n)
	}
}

func (p *Plugin) Status(reply *ipc.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ipc.SetParam(reply, p.name+"/parameter_count", int64(len(p.parameters)))
}

func (p *Plugin) Version() plugin.Version {
	return plugin.Version{Major: 1, Minor: 0, Patch: 0, Short: "1.0.0", Long: "metapublish-1.0.0"}
}

func (p *Plugin) ResetStatistics() {}
