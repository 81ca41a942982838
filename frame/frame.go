// Package frame implements Frame (spec.md §3, §4.8): the processor-side
// in-memory object wrapping either a borrowed shmem slot or an owning
// buffer, carrying metadata that plugins read and mutate as it moves
// through the chain.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package frame

import (
	"fmt"

	"github.com/odin-detector/odin-data-sub001/cmn/atomic"
	"github.com/odin-detector/odin-data-sub001/cmn/cos"
	"github.com/odin-detector/odin-data-sub001/cmn/debug"
)

// DType is the closed set of pixel element types a Frame may carry.
type DType int

const (
	DTypeUnknown DType = iota
	DTypeU8
	DTypeU16
	DTypeU32
	DTypeU64
	DTypeF32
)

func (d DType) String() string {
	switch d {
	case DTypeU8:
		return "u8"
	case DTypeU16:
		return "u16"
	case DTypeU32:
		return "u32"
	case DTypeU64:
		return "u64"
	case DTypeF32:
		return "f32"
	default:
		return "unknown"
	}
}

// Compression is the closed set of payload compression schemes.
type Compression int

const (
	CompressionUnknown Compression = iota
	CompressionNone
	CompressionLZ4
	CompressionBSLZ4
	CompressionBlosc
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionBSLZ4:
		return "bslz4"
	case CompressionBlosc:
		return "blosc"
	default:
		return "unknown"
	}
}

// Metadata is the mutable descriptive envelope carried alongside the pixel
// payload (spec.md §3 Frame).
type Metadata struct {
	FrameNumber     uint32
	DatasetName     string
	DType           DType
	Dimensions      []int
	Compression     Compression
	AcquisitionID   string
	FrameOffset     int64
	OuterChunkSize  int64
	Parameters      map[string]any
}

// payloadKind distinguishes a Frame that owns its bytes (e.g. synthesized
// by a plugin, or decompressed into a fresh buffer) from one that borrows
// them from a shmem slot and must release the slot on last release.
type payloadKind int

const (
	payloadOwned payloadKind = iota
	payloadBorrowed
)

// ReleaseFunc returns a borrowed slot to its pool; called exactly once,
// when the last queue holding a reference to the Frame drops it.
type ReleaseFunc func()

// Frame is reference-counted across every plugin inbox it has been pushed
// to; Acquire/Release pairs model that, with the borrowed-slot release
// firing only when the count reaches zero (spec.md §3 Frame lifecycle).
type Frame struct {
	Metadata

	bytes   []byte
	kind    payloadKind
	onFree  ReleaseFunc
	refs    atomic.Int64
}

// NewOwned builds a Frame around a buffer the caller already owns outright
// (e.g. a plugin-synthesized or decompressed image).
func NewOwned(md Metadata, bytes []byte) *Frame {
	f := &Frame{Metadata: md, bytes: bytes, kind: payloadOwned}
	f.refs.Store(1)
	return f
}

// NewBorrowed builds a Frame around a shmem slot view; onFree is invoked
// exactly once, when the Frame's reference count reaches zero.
func NewBorrowed(md Metadata, bytes []byte, onFree ReleaseFunc) *Frame {
	f := &Frame{Metadata: md, bytes: bytes, kind: payloadBorrowed, onFree: onFree}
	f.refs.Store(1)
	return f
}

// Acquire increments the reference count; call once for every queue the
// Frame is pushed onto, as plugin.Chain does on each push and fan-out.
func (f *Frame) Acquire() { f.refs.Inc() }

// Release decrements the reference count; at zero, a borrowed Frame
// releases its backing slot. Owned frames simply become garbage.
func (f *Frame) Release() {
	if f.refs.Dec() > 0 {
		return
	}
	if f.kind == payloadBorrowed && f.onFree != nil {
		f.onFree()
	}
}

// ImageBytes is a read-only view of the payload.
func (f *Frame) ImageBytes() []byte { return f.bytes }

// ImageBytesMut requires the Frame to be uniquely referenced; callers that
// split or mutate in place must hold the only reference.
func (f *Frame) ImageBytesMut() ([]byte, error) {
	if f.refs.Load() != 1 {
		return nil, fmt.Errorf("frame: ImageBytesMut requires exclusive ownership, have %d refs", f.refs.Load())
	}
	return f.bytes, nil
}

// ReplacePayload swaps the backing bytes, e.g. after decompression; the
// Frame becomes owned regardless of its prior kind, since the original
// slot (if any) is no longer referenced by this Frame.
func (f *Frame) ReplacePayload(bytes []byte) {
	if f.kind == payloadBorrowed && f.onFree != nil {
		f.onFree()
	}
	f.bytes = bytes
	f.kind = payloadOwned
	f.onFree = nil
}

// GetParameter type-asserts a metadata parameter, per the closed scalar set
// shared with ipc.ParamScalar.
func GetParameter[T bool | int32 | int64 | uint32 | uint64 | float64 | string](f *Frame, key string) (T, error) {
	var zero T
	v, ok := f.Parameters[key]
	if !ok {
		return zero, cos.NewErrParamMissing(key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, cos.NewErrParamTypeMismatch(key)
	}
	return t, nil
}

func (f *Frame) SetParameter(key string, v any) {
	if f.Parameters == nil {
		f.Parameters = map[string]any{}
	}
	f.Parameters[key] = v
}

// AdjustFrameOffset shifts FrameOffset by delta; the caller must ensure the
// resulting absolute offset (frame_number + offset) stays non-negative -
// the consumer computing that absolute value is responsible for surfacing
// cos.ErrFrameOffsetUnderflow, not this method (spec.md §4.8).
func (f *Frame) AdjustFrameOffset(delta int64) {
	f.FrameOffset += delta
}

// AbsoluteOffset computes frame_number + offset, returning
// cos.ErrFrameOffsetUnderflow if it would be negative.
func (f *Frame) AbsoluteOffset() (int64, error) {
	abs := int64(f.FrameNumber) + f.FrameOffset
	if abs < 0 {
		return 0, cos.NewErrFrameOffsetUnderflow(int64(f.FrameNumber), f.FrameOffset)
	}
	return abs, nil
}

// ValidateForSink checks the invariant every sink plugin relies on: dtype
// and compression must be resolved, and dimensions well-formed, by the
// time a Frame reaches the end of the chain.
func (f *Frame) ValidateForSink() error {
	if f.DType == DTypeUnknown {
		return fmt.Errorf("frame %d: dtype unresolved at sink", f.FrameNumber)
	}
	if f.Compression == CompressionUnknown {
		return fmt.Errorf("frame %d: compression unresolved at sink", f.FrameNumber)
	}
	if n := len(f.Dimensions); n < 1 || n > 3 {
		return fmt.Errorf("frame %d: dimensions length %d not in {1,2,3}", f.FrameNumber, n)
	}
	for _, d := range f.Dimensions {
		if d <= 0 {
			return fmt.Errorf("frame %d: non-positive dimension %d", f.FrameNumber, d)
		}
	}
	debug.Assert(f.refs.Load() > 0, "validated frame must still hold a reference")
	return nil
}
