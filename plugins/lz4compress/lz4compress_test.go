/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package lz4compress_test

import (
	"bytes"
	"testing"

	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/plugins/lz4compress"
)

func TestLZ4CompressShrinksCompressiblePayload(t *testing.T) {
	p := lz4compress.New("lz4")
	payload := bytes.Repeat([]byte("abcdefgh"), 4096)
	f := frame.NewOwned(frame.Metadata{FrameNumber: 1, Compression: frame.CompressionNone}, payload)

	p.ProcessFrame(f)

	if f.Compression != frame.CompressionLZ4 {
		t.Fatalf("Compression = %v, want lz4", f.Compression)
	}
	if len(f.ImageBytes()) >= len(payload) {
		t.Fatalf("compressed length %d not smaller than original %d", len(f.ImageBytes()), len(payload))
	}
	size, err := frame.GetParameter[int64](f, "lz4_uncompressed_size")
	if err != nil || size != int64(len(payload)) {
		t.Fatalf("lz4_uncompressed_size = %v, %v; want %d", size, err, len(payload))
	}
}

func TestLZ4CompressSkipsAlreadyCompressed(t *testing.T) {
	p := lz4compress.New("lz4")
	payload := bytes.Repeat([]byte("x"), 128)
	f := frame.NewOwned(frame.Metadata{FrameNumber: 1, Compression: frame.CompressionBSLZ4}, payload)

	p.ProcessFrame(f)

	if f.Compression != frame.CompressionBSLZ4 {
		t.Fatalf("Compression changed to %v, want unchanged bslz4", f.Compression)
	}
	if !bytes.Equal(f.ImageBytes(), payload) {
		t.Fatal("payload mutated despite pre-existing compression")
	}
}

func TestLZ4CompressDisabled(t *testing.T) {
	p := lz4compress.New("lz4")
	cfg := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValConfigure, 1)
	ipc.SetParam(cfg, "enabled", false)
	if err := p.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	payload := bytes.Repeat([]byte("abcdefgh"), 4096)
	f := frame.NewOwned(frame.Metadata{FrameNumber: 1, Compression: frame.CompressionNone}, payload)
	p.ProcessFrame(f)

	if f.Compression != frame.CompressionNone {
		t.Fatalf("Compression = %v, want none (plugin disabled)", f.Compression)
	}
}

func TestLZ4CompressStatusReportsCounters(t *testing.T) {
	p := lz4compress.New("lz4")
	payload := bytes.Repeat([]byte("abcdefgh"), 4096)
	f := frame.NewOwned(frame.Metadata{FrameNumber: 1, Compression: frame.CompressionNone}, payload)
	p.ProcessFrame(f)

	reply := ipc.NewEnvelope(ipc.MsgAck, ipc.ValStatus, 1)
	p.Status(reply)
	compressed, err := ipc.GetParam[int64](reply, "lz4/frames_compressed")
	if err != nil || compressed != 1 {
		t.Fatalf("lz4/frames_compressed = %v, %v; want 1", compressed, err)
	}
	if _, err := ipc.GetParam[string](reply, "lz4/ratio"); err != nil {
		t.Fatalf("expected lz4/ratio to be reported: %v", err)
	}
}
