// Package ipc implements the wire contract and event-loop machinery shared
// by the receiver and processor control planes: the JSON envelope codec
// (MessageCodec), the declarative parameter binder (ParamContainer), and the
// tickless reactor that multiplexes them (Reactor).
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package ipc

import (
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/odin-detector/odin-data-sub001/cmn/cos"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MsgType is the closed `msg_type` enum (spec.md §3 MessageEnvelope).
type MsgType string

const (
	MsgCmd    MsgType = "cmd"
	MsgAck    MsgType = "ack"
	MsgNack   MsgType = "nack"
	MsgNotify MsgType = "notify"
)

// MsgVal is the closed `msg_val` enum (spec.md §6).
type MsgVal string

const (
	ValReset                  MsgVal = "reset"
	ValStatus                 MsgVal = "status"
	ValConfigure              MsgVal = "configure"
	ValRequestConfiguration   MsgVal = "request_configuration"
	ValExecute                MsgVal = "execute"
	ValRequestCommands        MsgVal = "request_commands"
	ValRequestVersion         MsgVal = "request_version"
	ValBufferConfigRequest    MsgVal = "buffer_config_request"
	ValBufferPrechargeRequest MsgVal = "buffer_precharge_request"
	ValResetStatistics        MsgVal = "reset_statistics"
	ValShutdown               MsgVal = "shutdown"
	ValIdentity               MsgVal = "identity"
	ValFrameReady             MsgVal = "frame_ready"
	ValFrameRelease           MsgVal = "frame_release"
	ValBufferConfig           MsgVal = "buffer_config"
	ValBufferPrecharge        MsgVal = "buffer_precharge"
)

var validTypes = map[MsgType]struct{}{
	MsgCmd: {}, MsgAck: {}, MsgNack: {}, MsgNotify: {},
}

var validVals = map[MsgVal]struct{}{
	ValReset: {}, ValStatus: {}, ValConfigure: {}, ValRequestConfiguration: {},
	ValExecute: {}, ValRequestCommands: {}, ValRequestVersion: {},
	ValBufferConfigRequest: {}, ValBufferPrechargeRequest: {}, ValResetStatistics: {},
	ValShutdown: {}, ValIdentity: {}, ValFrameReady: {}, ValFrameRelease: {},
	ValBufferConfig: {}, ValBufferPrecharge: {},
}

const tsLayout = "2006-01-02T15:04:05.000000"

// Envelope is the in-memory form of the wire envelope (spec.md §6).
type Envelope struct {
	Type      MsgType         `json:"msg_type"`
	Val       MsgVal          `json:"msg_val"`
	ID        uint32          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Params    map[string]any  `json:"params"`

	// illegal is set by Decode in non-strict mode when Type/Val fall
	// outside the closed enum; Strict() reports it, callers must not act
	// on an illegal envelope.
	illegal bool
}

// NewEnvelope builds an outbound envelope stamped with the current time.
func NewEnvelope(typ MsgType, val MsgVal, id uint32) *Envelope {
	return &Envelope{
		Type:      typ,
		Val:       val,
		ID:        id,
		Timestamp: time.Now().UTC().Format(tsLayout),
		Params:    map[string]any{},
	}
}

func (e *Envelope) Strict() bool { return !e.illegal }

// Equal implements the structural equality contract of spec.md §4.1: type,
// value, timestamp, and every params leaf must match.
func (e *Envelope) Equal(o *Envelope) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Type != o.Type || e.Val != o.Val || e.Timestamp != o.Timestamp {
		return false
	}
	return paramsEqual(e.Params, o.Params)
}

func paramsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !leafEqual(av, bv) {
			return false
		}
	}
	return true
}

func leafEqual(a, b any) bool {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok != bok {
		return false
	}
	if aok {
		return paramsEqual(am, bm)
	}
	aa, aok := a.([]any)
	bb, bok := b.([]any)
	if aok != bok {
		return false
	}
	if aok {
		if len(aa) != len(bb) {
			return false
		}
		for i := range aa {
			if !leafEqual(aa[i], bb[i]) {
				return false
			}
		}
		return true
	}
	// SetParam stores native integer types while a decoded envelope carries
	// float64, so numbers are compared after widening both sides to float64
	return numericAsFloat(a) == numericAsFloat(b)
}

// numericAsFloat widens the native integer types SetParam stores to the
// float64 form a decoded envelope carries; other values pass through.
func numericAsFloat(v any) any {
	switch n := v.(type) {
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return v
}

// MessageCodec owns the wire contract: encode/decode plus the typed,
// `/`-separated path accessors described in spec.md §4.1.
type MessageCodec struct {
	strict bool
}

func NewMessageCodec(strict bool) *MessageCodec { return &MessageCodec{strict: strict} }

// Encode serializes an envelope to its wire JSON form.
func (*MessageCodec) Encode(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire envelope. In strict mode, a msg_type/msg_val outside
// the closed enum is a decode error; in non-strict mode it is accepted as an
// "illegal" envelope the caller may inspect but must not act on.
func (c *MessageCodec) Decode(raw []byte) (*Envelope, error) {
	var wire struct {
		Type      MsgType        `json:"msg_type"`
		Val       MsgVal         `json:"msg_val"`
		ID        uint32         `json:"id"`
		Timestamp string         `json:"timestamp"`
		Params    map[string]any `json:"params"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, cos.NewErrDecode(0, err.Error())
	}
	if wire.Params == nil {
		return nil, cos.NewErrDecode(len(raw), "missing params object")
	}
	if wire.Timestamp == "" {
		return nil, cos.NewErrDecode(len(raw), "missing timestamp")
	}

	_, typeOK := validTypes[wire.Type]
	_, valOK := validVals[wire.Val]
	e := &Envelope{
		Type: wire.Type, Val: wire.Val, ID: wire.ID,
		Timestamp: wire.Timestamp, Params: wire.Params,
	}
	if !typeOK || !valOK {
		if c.strict {
			return nil, cos.NewErrDecode(len(raw), "msg_type/msg_val not in closed enum")
		}
		e.illegal = true
	}
	return e, nil
}

//
// typed param accessors - path resolution is linear in path depth
//

// splitPath splits a `/`-separated path into segments, dropping a leading
// empty segment from a leading slash.
func splitPath(path string) []string {
	segs := strings.Split(path, "/")
	if len(segs) > 0 && segs[0] == "" {
		segs = segs[1:]
	}
	return segs
}

// RawValue returns the subtree at path for recursive descent by the caller.
func (e *Envelope) RawValue(path string) (any, error) {
	return resolve(e.Params, splitPath(path))
}

func resolve(node map[string]any, segs []string) (any, error) {
	if len(segs) == 0 {
		return node, nil
	}
	v, ok := node[segs[0]]
	if !ok {
		return nil, cos.NewErrParamMissing(strings.Join(segs, "/"))
	}
	if len(segs) == 1 {
		return v, nil
	}
	child, ok := v.(map[string]any)
	if !ok {
		return nil, cos.NewErrParamTypeMismatch(strings.Join(segs, "/"))
	}
	return resolve(child, segs[1:])
}

// ParamScalar is the closed set of scalar types the codec accepts/returns.
type ParamScalar interface {
	bool | int32 | int64 | uint32 | uint64 | float64 | string
}

// GetParam walks Params by path and type-asserts the leaf to T.
func GetParam[T ParamScalar](e *Envelope, path string) (T, error) {
	var zero T
	v, err := e.RawValue(path)
	if err != nil {
		return zero, err
	}
	return scalarAs[T](v, path)
}

func scalarAs[T ParamScalar](v any, path string) (T, error) {
	var zero T
	if t, ok := v.(T); ok {
		return t, nil // stored natively by SetParam
	}
	v = numericAsFloat(v)
	switch any(zero).(type) {
	case bool:
		if b, ok := v.(bool); ok {
			return any(b).(T), nil
		}
	case string:
		if s, ok := v.(string); ok {
			return any(s).(T), nil
		}
	case int32:
		if f, ok := v.(float64); ok {
			return any(int32(f)).(T), nil
		}
	case int64:
		if f, ok := v.(float64); ok {
			return any(int64(f)).(T), nil
		}
	case uint32:
		if f, ok := v.(float64); ok && f >= 0 {
			return any(uint32(f)).(T), nil
		}
	case uint64:
		if f, ok := v.(float64); ok && f >= 0 {
			return any(uint64(f)).(T), nil
		}
	case float64:
		if f, ok := v.(float64); ok {
			return any(f).(T), nil
		}
	}
	return zero, cos.NewErrParamTypeMismatch(path)
}

// SetParam writes a scalar at path, creating intermediate objects on demand.
// A trailing "[]" on the last segment appends to an array, creating it empty
// on first use.
func SetParam[T ParamScalar](e *Envelope, path string, v T) {
	if e.Params == nil {
		e.Params = map[string]any{}
	}
	segs := splitPath(path)
	setAt(e.Params, segs, v)
}

func setAt(node map[string]any, segs []string, v any) {
	last := segs[len(segs)-1]
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[seg] = child
		}
		node = child
	}
	if strings.HasSuffix(last, "[]") {
		key := strings.TrimSuffix(last, "[]")
		arr, _ := node[key].([]any)
		node[key] = append(arr, v)
		return
	}
	node[last] = v
}

