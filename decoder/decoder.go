// Package decoder implements FrameDecoder (spec.md §4.5): the UDP
// packet-header state machine that fills shmem slots and reports each
// frame's completion or timeout back to rx.RxService.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package decoder

import (
	"encoding/binary"
	"fmt"

	"github.com/odin-detector/odin-data-sub001/cmn"
	"github.com/odin-detector/odin-data-sub001/cmn/atomic"
	"github.com/odin-detector/odin-data-sub001/cmn/debug"
	"github.com/odin-detector/odin-data-sub001/cmn/mono"
	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
	"github.com/odin-detector/odin-data-sub001/shmem"
)

// PacketHeaderSize is the fixed-layout packet header this decoder variant
// understands: { frame_number u32, packet_number_flags u32 } (spec.md §3).
const PacketHeaderSize = 8

const (
	flagStartOfFrame = uint32(1) << 31
	flagEndOfFrame   = uint32(1) << 30
	packetIndexMask  = uint32(1)<<30 - 1
)

// PacketHeader is the decoded form of the fixed 8-byte on-wire header.
type PacketHeader struct {
	FrameNumber uint32
	PacketIndex uint32
	StartOfFrame bool
	EndOfFrame   bool
}

// ParsePacketHeader decodes the fixed little-endian header at the front of
// every UDP packet. It does not validate PacketIndex against the configured
// packets-per-frame; that's FrameDecoder's job, once it knows which frame
// the packet belongs to.
func ParsePacketHeader(b []byte) (PacketHeader, error) {
	if len(b) < PacketHeaderSize {
		return PacketHeader{}, fmt.Errorf("decoder: packet header needs %d bytes, got %d", PacketHeaderSize, len(b))
	}
	frameNumber := binary.LittleEndian.Uint32(b[0:4])
	flags := binary.LittleEndian.Uint32(b[4:8])
	return PacketHeader{
		FrameNumber:  frameNumber,
		PacketIndex:  flags & packetIndexMask,
		StartOfFrame: flags&flagStartOfFrame != 0,
		EndOfFrame:   flags&flagEndOfFrame != 0,
	}, nil
}

// frameHeaderSize is sizeof(FrameHeader) embedded at offset 0 of every
// slot: frame_number, state, start_time, packets_expected, packets_received,
// packet_size, followed by the per-packet state byte array sized at
// Config.PacketsPerFrame. The fixed prefix is 28 bytes; the state array is
// appended by frameHeaderSize(cfg).
const frameHeaderFixedSize = 28

type frameState uint8

const (
	stateIncomplete frameState = iota
	stateComplete
	stateTimedOut
)

// Config holds the decoder's fixed per-frame layout knobs.
type Config struct {
	PacketsPerFrame uint32
	PacketSize      uint32
	FrameTimeoutMS  int64
}

// Counters mirrors spec.md §4.5's required counter set, each an atomic so
// the reactor goroutine and a status-reply reader never race.
type Counters struct {
	PacketsReceived  atomic.Int64
	PacketsLost      atomic.Int64
	PacketsDropped   atomic.Int64
	PacketsDuplicate atomic.Int64
	FramesTimedOut   atomic.Int64
	FramesDropped    atomic.Int64
}

func (c *Counters) Reset() {
	c.PacketsReceived.Store(0)
	c.PacketsLost.Store(0)
	c.PacketsDropped.Store(0)
	c.PacketsDuplicate.Store(0)
	c.FramesTimedOut.Store(0)
	c.FramesDropped.Store(0)
}

// Ready is emitted for every frame that completes or times out.
type Ready struct {
	SlotID      uint64
	FrameNumber uint32
	TimedOut    bool
	PacketsLost int
}

type inflight struct {
	slotID          uint64
	startTime       int64
	packetsExpected uint32
	packetsReceived uint32
	seen            *dupGuard
}

// FrameDecoder runs the per-packet state machine described in spec.md
// §4.5. It is not goroutine-safe; it is driven exclusively from the
// receiver's reactor goroutine (per-socket readiness callback plus the
// periodic timeout-monitor timer).
type FrameDecoder struct {
	cfg      Config
	mgr      *shmem.SharedBufferManager
	empty    *EmptySlotQueue
	dropBuf  []byte
	inflight map[uint32]*inflight
	counters Counters
	onReady  func(Ready)

	// dropping/dropFrame make drop-mode sticky per frame_number, mirroring
	// ExcaliburFrameDecoder.cpp's current_frame_seen_: once a frame_number
	// fails to get a slot, every further packet of that same frame_number
	// drops too, even if a slot frees up in the meantime. Only a genuinely
	// new frame_number re-runs the empty-slot-queue decision.
	dropping bool
	dropFrame uint32
}

func New(cfg Config, mgr *shmem.SharedBufferManager, empty *EmptySlotQueue, onReady func(Ready)) *FrameDecoder {
	return &FrameDecoder{
		cfg:      cfg,
		mgr:      mgr,
		empty:    empty,
		dropBuf:  make([]byte, cfg.PacketSize),
		inflight: make(map[uint32]*inflight),
		onReady:  onReady,
	}
}

func (d *FrameDecoder) Counters() *Counters { return &d.counters }

// NextPayloadBuffer returns the buffer the receive loop should read a
// packet's payload into, selected by ProcessPacketHeader's slot decision
// for this frame_number. Call ProcessPacketHeader first.
func (d *FrameDecoder) NextPayloadBuffer(hdr PacketHeader) ([]byte, error) {
	fl, ok := d.inflight[hdr.FrameNumber]
	if !ok {
		return d.dropBuf, nil
	}
	slot, err := d.mgr.Slot(fl.slotID)
	if err != nil {
		return nil, err
	}
	off := frameHeaderSize(d.cfg) + int(hdr.PacketIndex)*int(d.cfg.PacketSize)
	end := off + int(d.cfg.PacketSize)
	if end > len(slot) {
		return nil, fmt.Errorf("decoder: packet index %d overflows slot bounds", hdr.PacketIndex)
	}
	return slot[off:end], nil
}

// ProcessPacketHeader implements slot selection: on the first packet of a
// new frame_number, pop an empty slot (or enter drop mode); on a packet of
// an already-tracked frame, resolve to its existing slot.
func (d *FrameDecoder) ProcessPacketHeader(hdr PacketHeader) {
	if _, ok := d.inflight[hdr.FrameNumber]; ok {
		return
	}
	if d.dropping && hdr.FrameNumber == d.dropFrame {
		d.counters.PacketsDropped.Inc()
		return // same still-dropping frame: don't re-run the slot decision
	}
	slotID, ok := d.empty.Pop()
	if !ok {
		d.dropping = true
		d.dropFrame = hdr.FrameNumber
		d.counters.FramesDropped.Inc()
		d.counters.PacketsDropped.Inc()
		return
	}
	d.dropping = false
	d.inflight[hdr.FrameNumber] = &inflight{
		slotID:          slotID,
		startTime:       mono.NanoTime(),
		packetsExpected: d.cfg.PacketsPerFrame,
		seen:            newDupGuard(d.cfg.PacketsPerFrame),
	}
	d.initSlotHeader(hdr.FrameNumber, slotID)
}

// ProcessPacket records a received payload (already copied into the slot
// by the caller, via NextPayloadBuffer) and reports completion when every
// expected packet has arrived.
func (d *FrameDecoder) ProcessPacket(hdr PacketHeader, n int) {
	fl, ok := d.inflight[hdr.FrameNumber]
	if !ok {
		return // drop mode: ProcessPacketHeader already counted this packet
	}
	if hdr.PacketIndex >= fl.packetsExpected {
		return // no packet_state byte for this index
	}
	if fl.seen.SeenBefore(hdr.PacketIndex) {
		d.counters.PacketsDuplicate.Inc()
	}
	slot, err := d.mgr.Slot(fl.slotID)
	debug.AssertNoErr(err)
	state := frameHeaderFixedSize + int(hdr.PacketIndex)
	if slot[state] != 0 {
		return // idempotent: byte already written, don't double-count
	}
	slot[state] = 1
	fl.seen.MarkSeen(hdr.PacketIndex)
	fl.packetsReceived++
	d.counters.PacketsReceived.Inc()
	d.writeSlotProgress(hdr.FrameNumber, fl)

	if cmn.Rom.FastV(4) {
		nlog.Infof("decoder: frame %d packet %d/%d (slot %d)",
			hdr.FrameNumber, fl.packetsReceived, fl.packetsExpected, fl.slotID)
	}

	if fl.packetsReceived == fl.packetsExpected {
		d.complete(hdr.FrameNumber, fl)
	}
}

func (d *FrameDecoder) complete(frameNumber uint32, fl *inflight) {
	delete(d.inflight, frameNumber)
	d.setSlotState(fl.slotID, stateComplete)
	d.onReady(Ready{SlotID: fl.slotID, FrameNumber: frameNumber})
}

// CheckTimeouts is the periodic watchdog the reactor's frame-timeout timer
// invokes; it drops any frame that has been incomplete longer than
// FrameTimeoutMS.
func (d *FrameDecoder) CheckTimeouts(now int64) {
	timeoutNS := d.cfg.FrameTimeoutMS * int64(1e6)
	for frameNumber, fl := range d.inflight {
		if now-fl.startTime <= timeoutNS {
			continue
		}
		lost := int(fl.packetsExpected - fl.packetsReceived)
		delete(d.inflight, frameNumber)
		d.setSlotState(fl.slotID, stateTimedOut)
		d.counters.FramesTimedOut.Inc()
		d.counters.PacketsLost.Add(int64(lost))
		d.onReady(Ready{SlotID: fl.slotID, FrameNumber: frameNumber, TimedOut: true, PacketsLost: lost})
	}
}

func frameHeaderSize(cfg Config) int {
	return frameHeaderFixedSize + int(cfg.PacketsPerFrame)
}

func (d *FrameDecoder) initSlotHeader(frameNumber uint32, slotID uint64) {
	slot, err := d.mgr.Slot(slotID)
	debug.AssertNoErr(err)
	binary.LittleEndian.PutUint32(slot[0:4], frameNumber)
	slot[4] = byte(stateIncomplete)
	binary.LittleEndian.PutUint64(slot[8:16], uint64(mono.NanoTime()))
	binary.LittleEndian.PutUint32(slot[16:20], d.cfg.PacketsPerFrame)
	binary.LittleEndian.PutUint32(slot[20:24], 0)
	binary.LittleEndian.PutUint32(slot[24:28], d.cfg.PacketSize)
	for i := range int(d.cfg.PacketsPerFrame) {
		slot[frameHeaderFixedSize+i] = 0
	}
}

func (d *FrameDecoder) writeSlotProgress(frameNumber uint32, fl *inflight) {
	slot, err := d.mgr.Slot(fl.slotID)
	debug.AssertNoErr(err)
	binary.LittleEndian.PutUint32(slot[20:24], fl.packetsReceived)
}

func (d *FrameDecoder) setSlotState(slotID uint64, state frameState) {
	slot, err := d.mgr.Slot(slotID)
	debug.AssertNoErr(err)
	slot[4] = byte(state)
}
