/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package decoder_test

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/odin-detector/odin-data-sub001/decoder"
	"github.com/odin-detector/odin-data-sub001/shmem"
)

func encodeHeader(frameNumber, packetIndex uint32, sof, eof bool) []byte {
	var flags uint32
	if sof {
		flags |= 1 << 31
	}
	if eof {
		flags |= 1 << 30
	}
	flags |= packetIndex
	b := make([]byte, decoder.PacketHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], frameNumber)
	binary.LittleEndian.PutUint32(b[4:8], flags)
	return b
}

func newTestPool(t *testing.T, name string, n uint64, size uint64) *shmem.SharedBufferManager {
	m, err := shmem.Create(name, n, size)
	if err != nil {
		t.Fatalf("shmem.Create: %v", err)
	}
	t.Cleanup(func() { m.Close(true) })
	return m
}

func TestParsePacketHeader(t *testing.T) {
	raw := encodeHeader(42, 7, true, false)
	hdr, err := decoder.ParsePacketHeader(raw)
	if err != nil {
		t.Fatalf("ParsePacketHeader: %v", err)
	}
	if hdr.FrameNumber != 42 || hdr.PacketIndex != 7 || !hdr.StartOfFrame || hdr.EndOfFrame {
		t.Fatalf("got %+v", hdr)
	}
}

func TestFrameCompletesOnLastExpectedPacket(t *testing.T) {
	mgr := newTestPool(t, fmt.Sprintf("odin-decoder-complete-%d", 1), 4, 4096)
	empty := decoder.NewEmptySlotQueue(4)

	var readies []decoder.Ready
	cfg := decoder.Config{PacketsPerFrame: 3, PacketSize: 64, FrameTimeoutMS: 1000}
	d := decoder.New(cfg, mgr, empty, func(r decoder.Ready) { readies = append(readies, r) })

	for i := uint32(0); i < 3; i++ {
		hdr, _ := decoder.ParsePacketHeader(encodeHeader(1, i, i == 0, i == 2))
		d.ProcessPacketHeader(hdr)
		buf, err := d.NextPayloadBuffer(hdr)
		if err != nil {
			t.Fatalf("NextPayloadBuffer: %v", err)
		}
		copy(buf, []byte("x"))
		d.ProcessPacket(hdr, 1)
	}

	if len(readies) != 1 || readies[0].FrameNumber != 1 || readies[0].TimedOut {
		t.Fatalf("got readies=%+v, want one complete ready for frame 1", readies)
	}
	if d.Counters().PacketsReceived.Load() != 3 {
		t.Fatalf("packets_received=%d, want 3", d.Counters().PacketsReceived.Load())
	}
}

func TestDuplicatePacketIdempotent(t *testing.T) {
	mgr := newTestPool(t, fmt.Sprintf("odin-decoder-dup-%d", 2), 4, 4096)
	empty := decoder.NewEmptySlotQueue(4)
	cfg := decoder.Config{PacketsPerFrame: 2, PacketSize: 64, FrameTimeoutMS: 1000}
	d := decoder.New(cfg, mgr, empty, func(decoder.Ready) {})

	hdr, _ := decoder.ParsePacketHeader(encodeHeader(5, 0, true, false))
	d.ProcessPacketHeader(hdr)
	buf, _ := d.NextPayloadBuffer(hdr)
	copy(buf, []byte("a"))
	d.ProcessPacket(hdr, 1)
	d.ProcessPacket(hdr, 1) // duplicate of the same packet

	if got := d.Counters().PacketsReceived.Load(); got != 1 {
		t.Fatalf("packets_received=%d, want 1 (duplicate must not double-count)", got)
	}
	if got := d.Counters().PacketsDuplicate.Load(); got != 1 {
		t.Fatalf("packets_duplicate=%d, want 1", got)
	}
}

func TestEmptySlotQueueExhaustionDropsFrame(t *testing.T) {
	mgr := newTestPool(t, fmt.Sprintf("odin-decoder-drop-%d", 3), 1, 4096)
	empty := decoder.NewEmptySlotQueue(1)
	cfg := decoder.Config{PacketsPerFrame: 1, PacketSize: 64, FrameTimeoutMS: 1000}
	d := decoder.New(cfg, mgr, empty, func(decoder.Ready) {})

	hdr1, _ := decoder.ParsePacketHeader(encodeHeader(1, 0, true, true))
	d.ProcessPacketHeader(hdr1) // consumes the only slot

	hdr2, _ := decoder.ParsePacketHeader(encodeHeader(2, 0, true, true))
	d.ProcessPacketHeader(hdr2) // queue is now empty: frame 2 enters drop mode

	buf, err := d.NextPayloadBuffer(hdr2)
	if err != nil {
		t.Fatalf("NextPayloadBuffer for dropped frame: %v", err)
	}
	if len(buf) != int(cfg.PacketSize) {
		t.Fatalf("drop buffer size=%d, want %d", len(buf), cfg.PacketSize)
	}
	if got := d.Counters().PacketsDropped.Load(); got != 1 {
		t.Fatalf("packets_dropped=%d, want 1", got)
	}
}

func TestDropModeIsStickyPerFrame(t *testing.T) {
	mgr := newTestPool(t, fmt.Sprintf("odin-decoder-drop-sticky-%d", 5), 1, 4096)
	empty := decoder.NewEmptySlotQueue(1)
	cfg := decoder.Config{PacketsPerFrame: 2, PacketSize: 64, FrameTimeoutMS: 1000}
	d := decoder.New(cfg, mgr, empty, func(decoder.Ready) {})

	hdr1, _ := decoder.ParsePacketHeader(encodeHeader(1, 0, true, false))
	d.ProcessPacketHeader(hdr1) // consumes the only slot for frame 1

	hdr2a, _ := decoder.ParsePacketHeader(encodeHeader(2, 0, true, false))
	d.ProcessPacketHeader(hdr2a) // queue empty: frame 2 enters drop mode

	// Frame 1 releases its slot back to the queue mid-way through frame 2.
	empty.Push(0)

	hdr2b, _ := decoder.ParsePacketHeader(encodeHeader(2, 1, false, true))
	d.ProcessPacketHeader(hdr2b) // still frame 2: must stay in drop mode

	if got := d.Counters().PacketsDropped.Load(); got != 2 {
		t.Fatalf("packets_dropped=%d, want 2 (both packets of frame 2 dropped)", got)
	}

	buf, err := d.NextPayloadBuffer(hdr2b)
	if err != nil {
		t.Fatalf("NextPayloadBuffer for still-dropping frame: %v", err)
	}
	if len(buf) != int(cfg.PacketSize) {
		t.Fatalf("drop buffer size=%d, want %d", len(buf), cfg.PacketSize)
	}

	// A genuinely new frame number may now claim the freed slot.
	hdr3, _ := decoder.ParsePacketHeader(encodeHeader(3, 0, true, false))
	d.ProcessPacketHeader(hdr3)
	dst, err := d.NextPayloadBuffer(hdr3)
	if err != nil {
		t.Fatalf("NextPayloadBuffer for frame 3: %v", err)
	}
	if len(dst) != int(cfg.PacketSize) || &dst[0] == &buf[0] {
		t.Fatalf("frame 3 did not escape drop mode: got the drop buffer")
	}
}

func TestCheckTimeoutsEmitsTimedOutReady(t *testing.T) {
	mgr := newTestPool(t, fmt.Sprintf("odin-decoder-timeout-%d", 4), 2, 4096)
	empty := decoder.NewEmptySlotQueue(2)
	cfg := decoder.Config{PacketsPerFrame: 3, PacketSize: 64, FrameTimeoutMS: 0}
	var readies []decoder.Ready
	d := decoder.New(cfg, mgr, empty, func(r decoder.Ready) { readies = append(readies, r) })

	hdr, _ := decoder.ParsePacketHeader(encodeHeader(9, 0, true, false))
	d.ProcessPacketHeader(hdr)
	buf, _ := d.NextPayloadBuffer(hdr)
	copy(buf, []byte("x"))
	d.ProcessPacket(hdr, 1)

	d.CheckTimeouts(1 << 40) // far enough in the future to exceed a 0ms timeout

	if len(readies) != 1 || !readies[0].TimedOut || readies[0].PacketsLost != 2 {
		t.Fatalf("got readies=%+v, want one timed-out ready with 2 packets lost", readies)
	}
}
