/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package dummy_test

import (
	"testing"

	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/plugins/dummy"
)

func TestDummyTracksFramesSeenAndLastDataset(t *testing.T) {
	p := dummy.New("sink")

	p.ProcessFrame(frame.NewOwned(frame.Metadata{FrameNumber: 1, DatasetName: "data"}, nil))
	p.ProcessFrame(frame.NewOwned(frame.Metadata{FrameNumber: 2, DatasetName: "data"}, nil))

	if p.FramesSeen() != 2 {
		t.Fatalf("FramesSeen = %d, want 2", p.FramesSeen())
	}
	if p.LastDatasetName() != "data" {
		t.Fatalf("LastDatasetName = %q, want data", p.LastDatasetName())
	}

	p.ResetStatistics()
	if p.FramesSeen() != 0 {
		t.Fatalf("FramesSeen after reset = %d, want 0", p.FramesSeen())
	}
}
