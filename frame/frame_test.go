/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package frame_test

import (
	"testing"

	"github.com/odin-detector/odin-data-sub001/frame"
)

func TestBorrowedReleasesOnLastRef(t *testing.T) {
	freed := false
	f := frame.NewBorrowed(frame.Metadata{FrameNumber: 1}, make([]byte, 8), func() { freed = true })
	f.Acquire()

	f.Release()
	if freed {
		t.Fatal("released too early: one ref still outstanding")
	}
	f.Release()
	if !freed {
		t.Fatal("expected slot release at zero refs")
	}
}

func TestImageBytesMutRequiresExclusive(t *testing.T) {
	f := frame.NewOwned(frame.Metadata{}, make([]byte, 4))
	f.Acquire()
	if _, err := f.ImageBytesMut(); err == nil {
		t.Fatal("expected exclusivity error with 2 outstanding refs")
	}
	f.Release()
	if _, err := f.ImageBytesMut(); err != nil {
		t.Fatalf("expected success with 1 ref: %v", err)
	}
}

func TestAbsoluteOffsetUnderflow(t *testing.T) {
	f := frame.NewOwned(frame.Metadata{FrameNumber: 3, FrameOffset: -10}, nil)
	if _, err := f.AbsoluteOffset(); err == nil {
		t.Fatal("expected underflow error for frame_number(3) + offset(-10)")
	}
}

func TestValidateForSink(t *testing.T) {
	f := frame.NewOwned(frame.Metadata{
		DType:       frame.DTypeU16,
		Compression: frame.CompressionLZ4,
		Dimensions:  []int{512, 512},
	}, nil)
	if err := f.ValidateForSink(); err != nil {
		t.Fatalf("expected valid frame, got %v", err)
	}

	bad := frame.NewOwned(frame.Metadata{Dimensions: []int{512, 512}}, nil)
	if err := bad.ValidateForSink(); err == nil {
		t.Fatal("expected unresolved dtype to fail validation")
	}
}

func TestGetSetParameter(t *testing.T) {
	f := frame.NewOwned(frame.Metadata{}, nil)
	f.SetParameter("exposure_ms", float64(12.5))

	v, err := frame.GetParameter[float64](f, "exposure_ms")
	if err != nil || v != 12.5 {
		t.Fatalf("got (%v,%v), want (12.5,nil)", v, err)
	}
	if _, err := frame.GetParameter[int64](f, "exposure_ms"); err == nil {
		t.Fatal("expected type mismatch for int64 read of a float64 parameter")
	}
	if _, err := frame.GetParameter[float64](f, "missing"); err == nil {
		t.Fatal("expected missing-parameter error")
	}
}
