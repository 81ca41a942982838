/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package offsetadjust_test

import (
	"testing"

	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/plugins/offsetadjust"
)

func TestOffsetAdjustAppliesConfiguredDelta(t *testing.T) {
	p := offsetadjust.New("offset")

	cfg := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValConfigure, 1)
	ipc.SetParam(cfg, "offset_adjustment", int64(-3))
	if err := p.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	f := frame.NewOwned(frame.Metadata{FrameNumber: 10}, nil)
	p.ProcessFrame(f)

	if f.FrameOffset != -3 {
		t.Fatalf("FrameOffset = %d, want -3", f.FrameOffset)
	}
}

func TestOffsetAdjustMissingKeyLeavesOffsetUnchanged(t *testing.T) {
	p := offsetadjust.New("offset")

	cfg := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValConfigure, 1)
	ipc.SetParam(cfg, "offset_adjustment", int64(5))
	if err := p.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	empty := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValConfigure, 2)
	if err := p.Configure(empty); err != nil {
		t.Fatalf("Configure(empty): %v", err)
	}

	f := frame.NewOwned(frame.Metadata{FrameNumber: 1}, nil)
	p.ProcessFrame(f)
	if f.FrameOffset != 5 {
		t.Fatalf("FrameOffset = %d, want 5 (unchanged)", f.FrameOffset)
	}
}

func TestOffsetAdjustStatusReportsCurrentOffset(t *testing.T) {
	p := offsetadjust.New("offset")
	cfg := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValConfigure, 1)
	ipc.SetParam(cfg, "offset_adjustment", int64(7))
	_ = p.Configure(cfg)

	reply := ipc.NewEnvelope(ipc.MsgAck, ipc.ValStatus, 1)
	p.Status(reply)
	got, err := ipc.GetParam[int64](reply, "offset/offset_adjustment")
	if err != nil || got != 7 {
		t.Fatalf("offset/offset_adjustment = %v, %v; want 7", got, err)
	}
}
