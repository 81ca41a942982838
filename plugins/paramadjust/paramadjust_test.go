/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package paramadjust_test

import (
	"testing"

	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/plugins/paramadjust"
)

func TestParamAdjustAppliesFromFirstFrame(t *testing.T) {
	p := paramadjust.New("adj")

	cfg := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValConfigure, 1)
	ipc.SetParam(cfg, "first_frame", int64(10))
	ipc.SetParam(cfg, "parameter/UID/adjustment", float64(-1))
	if err := p.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	f9 := frame.NewOwned(frame.Metadata{FrameNumber: 9}, nil)
	p.ProcessFrame(f9)
	if _, err := frame.GetParameter[uint64](f9, "UID"); err == nil {
		t.Fatal("frame 9 should not have UID adjusted (before first_frame)")
	}

	f10 := frame.NewOwned(frame.Metadata{FrameNumber: 10}, nil)
	p.ProcessFrame(f10)
	uid10, err := frame.GetParameter[uint64](f10, "UID")
	if err != nil || uid10 != 9 {
		t.Fatalf("frame 10 UID = %v, %v; want 9", uid10, err)
	}

	f11 := frame.NewOwned(frame.Metadata{FrameNumber: 11}, nil)
	p.ProcessFrame(f11)
	uid11, err := frame.GetParameter[uint64](f11, "UID")
	if err != nil || uid11 != 10 {
		t.Fatalf("frame 11 UID = %v, %v; want 10", uid11, err)
	}
}

func TestParamAdjustClearOnEmptyParameterMap(t *testing.T) {
	p := paramadjust.New("adj")

	cfg := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValConfigure, 1)
	ipc.SetParam(cfg, "first_frame", int64(0))
	ipc.SetParam(cfg, "parameter/UID/adjustment", float64(5))
	_ = p.Configure(cfg)

	clear := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValConfigure, 2)
	clear.Params["parameter"] = map[string]any{}
	if err := p.Configure(clear); err != nil {
		t.Fatalf("Configure(clear): %v", err)
	}

	f := frame.NewOwned(frame.Metadata{FrameNumber: 0}, nil)
	p.ProcessFrame(f)
	if _, err := frame.GetParameter[uint64](f, "UID"); err == nil {
		t.Fatal("UID should no longer be adjusted after clearing")
	}
}
