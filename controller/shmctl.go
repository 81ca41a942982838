// Package controller implements SharedMemoryController (spec.md §4.7,
// shmctl.go) and ProcessorController (spec.md §4.10, proc.go), both
// running inside the processor-side reactor.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package controller

import (
	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/shmem"
)

// entryPoint is a callback registered via RegisterCallback: the plugin
// chain entry point(s) that subscribe to SharedMemoryController's fan-out
// (spec.md §4.7 step 3, "connection == frame_receiver" edges from
// ProcessorController's plugin/connect handling).
type entryPoint struct {
	name string
	push func(*frame.Frame) error
}

// SharedMemoryController consumes the receiver's ready notifications,
// wraps each slot as a Frame, and fans it out to every registered chain
// entry point; it emits the matching release once every consumer has
// dropped its reference.
type SharedMemoryController struct {
	ctrl       *ipc.Transport // dealer channel back to the receiver (ready in, release out)
	mgr        *shmem.SharedBufferManager
	entries    []entryPoint
	copyOnRead bool // policy: borrow (zero-copy) vs copy-then-release-immediately
}

func NewSharedMemoryController(ctrl *ipc.Transport, mgr *shmem.SharedBufferManager, copyOnRead bool) *SharedMemoryController {
	return &SharedMemoryController{ctrl: ctrl, mgr: mgr, copyOnRead: copyOnRead}
}

// RegisterCallback wires a chain entry point into the fan-out set.
// Duplicate names replace the prior registration.
func (s *SharedMemoryController) RegisterCallback(name string, push func(*frame.Frame) error) {
	for i, e := range s.entries {
		if e.name == name {
			s.entries[i].push = push
			return
		}
	}
	s.entries = append(s.entries, entryPoint{name: name, push: push})
}

func (s *SharedMemoryController) RemoveCallback(name string) {
	for i, e := range s.entries {
		if e.name == name {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// OnMessage is the channel callback the processor's reactor registers on
// s.ctrl.Recv(); it handles notify:frame_ready and the buffer_config
// bootstrap exchange.
func (s *SharedMemoryController) OnMessage(v any) error {
	e := v.(*ipc.Envelope)
	if !e.Strict() {
		return nil
	}
	switch e.Val {
	case ipc.ValFrameReady:
		s.onFrameReady(e)
	case ipc.ValBufferConfig:
		// handled by the caller that owns segment (re)opening; exposed via
		// BufferConfigParams for ProcessorController to act on
	}
	return nil
}

// BufferConfigParams extracts {shared_buffer_name, num_buffers,
// buffer_size} from a notify:buffer_config envelope (spec.md §4.7
// "Buffer-configuration bootstrap").
func BufferConfigParams(e *ipc.Envelope) (name string, num, size uint32, err error) {
	if name, err = ipc.GetParam[string](e, "shared_buffer_name"); err != nil {
		return
	}
	if num, err = ipc.GetParam[uint32](e, "num_buffers"); err != nil {
		return
	}
	size, err = ipc.GetParam[uint32](e, "buffer_size")
	return
}

// RequestBufferConfig sends cmd:buffer_config_request to the receiver.
func (s *SharedMemoryController) RequestBufferConfig() error {
	return s.ctrl.Send(ipc.NewEnvelope(ipc.MsgCmd, ipc.ValBufferConfigRequest, 0))
}

func (s *SharedMemoryController) onFrameReady(e *ipc.Envelope) {
	bufferID, err := ipc.GetParam[uint32](e, "buffer_id")
	if err != nil {
		nlog.Warningf("shmctl: frame_ready missing buffer_id: %v", err)
		return
	}
	frameNumber, err := ipc.GetParam[uint32](e, "frame")
	if err != nil {
		nlog.Warningf("shmctl: frame_ready missing frame: %v", err)
		return
	}

	slot, err := s.mgr.Slot(uint64(bufferID))
	if err != nil {
		nlog.Warningf("shmctl: %v", err)
		return
	}
	md := readFrameHeaderMeta(slot, frameNumber)

	var f *frame.Frame
	if s.copyOnRead {
		payload := make([]byte, len(slot))
		copy(payload, slot)
		f = frame.NewOwned(md, payload)
		s.release(bufferID)
	} else {
		f = frame.NewBorrowed(md, slot, func() { s.release(bufferID) })
	}

	for _, ep := range s.entries {
		// an entry point that queues f takes its own reference (plugin.Chain.Push)
		if err := ep.push(f); err != nil {
			nlog.Warningf("shmctl: push to %s: %v", ep.name, err)
		}
	}
	f.Release() // the controller's own initial reference
}

func (s *SharedMemoryController) release(bufferID uint32) {
	e := ipc.NewEnvelope(ipc.MsgNotify, ipc.ValFrameRelease, 0)
	ipc.SetParam(e, "buffer_id", bufferID)
	if err := s.ctrl.Send(e); err != nil {
		nlog.Warningf("shmctl: release send: %v", err)
	}
}

// readFrameHeaderMeta builds minimal Frame metadata from the frame number
// carried by the frame_ready notification; the FrameHeader that
// decoder.FrameDecoder writes at the front of the slot is not read, and the
// Frame's payload is the whole slot, header included. dtype/compression are
// left unresolved (frame.DTypeUnknown/CompressionUnknown) since those are
// detector/format specific and set by an upstream plugin before a sink
// validates them (spec.md §3 Frame invariant).
func readFrameHeaderMeta(slot []byte, frameNumber uint32) frame.Metadata {
	return frame.Metadata{
		FrameNumber: frameNumber,
		DType:       frame.DTypeUnknown,
		Compression: frame.CompressionUnknown,
		Dimensions:  nil,
		Parameters:  map[string]any{},
	}
}
