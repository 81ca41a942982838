// Package lz4compress implements a Plugin that LZ4-compresses a Frame's
// payload in place, the one concrete compression codec wired among the
// several frame.Compression kinds the metadata model supports (bslz4 and
// blosc remain undone).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package lz4compress

import (
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v3"

	"github.com/odin-detector/odin-data-sub001/cmn/atomic"
	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/plugin"
)

const configEnabled = "enabled"

// Plugin compresses every passing Frame's payload with LZ4 block
// compression and sets frame.Metadata.Compression accordingly; a frame
// whose Compression is already set to anything but CompressionNone is
// passed through untouched, since it has already been compressed upstream.
type Plugin struct {
	name string

	mu      sync.Mutex
	enabled bool

	framesCompressed atomic.Int64
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
}

func New(name string) *Plugin { return &Plugin{name: name, enabled: true} }

func (p *Plugin) Name() string { return p.name }

func (p *Plugin) ProcessFrame(f *frame.Frame) {
	p.mu.Lock()
	enabled := p.enabled
	p.mu.Unlock()
	if !enabled || f.Compression != frame.CompressionNone {
		return
	}

	src := f.ImageBytes()
	if len(src) == 0 {
		return
	}
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(src, dst, ht[:])
	if err != nil || n == 0 {
		// incompressible or too small to shrink: leave uncompressed
		return
	}

	f.ReplacePayload(dst[:n])
	f.Compression = frame.CompressionLZ4
	f.SetParameter("lz4_uncompressed_size", int64(len(src)))

	p.framesCompressed.Inc()
	p.bytesIn.Add(int64(len(src)))
	p.bytesOut.Add(int64(n))
}

func (p *Plugin) Configure(e *ipc.Envelope) error {
	v, err := ipc.GetParam[bool](e, configEnabled)
	if err != nil {
		return nil
	}
	p.mu.Lock()
	p.enabled = v
	p.mu.Unlock()
	return nil
}

func (p *Plugin) RequestConfiguration(reply *ipc.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ipc.SetParam(reply, p.name+"/"+configEnabled, p.enabled)
}

func (p *Plugin) Status(reply *ipc.Envelope) {
	ipc.SetParam(reply, p.name+"/frames_compressed", p.framesCompressed.Load())
	bytesIn, bytesOut := p.bytesIn.Load(), p.bytesOut.Load()
	ipc.SetParam(reply, p.name+"/bytes_in", bytesIn)
	ipc.SetParam(reply, p.name+"/bytes_out", bytesOut)
	if bytesIn > 0 {
		ipc.SetParam(reply, p.name+"/ratio", fmt.Sprintf("%.3f", float64(bytesOut)/float64(bytesIn)))
	}
}

func (p *Plugin) Version() plugin.Version {
	return plugin.Version{Major: 1, Minor: 0, Patch: 0, Short: "1.0.0", Long: "lz4compress-1.0.0"}
}

func (p *Plugin) ResetStatistics() {
	p.framesCompressed.Store(0)
	p.bytesIn.Store(0)
	p.bytesOut.Store(0)
}
