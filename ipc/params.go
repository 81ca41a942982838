/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package ipc

import (
	"sync"

	"github.com/odin-detector/odin-data-sub001/cmn/atomic"
	"github.com/odin-detector/odin-data-sub001/cmn/cos"
)

// field is a bound leaf: a path plus the typed accessors needed to read it
// into and write it back out of an Envelope's Params tree. Exactly one of
// the get*/set* closures is non-nil, selected by kind.
type field struct {
	path string
	kind fieldKind

	getBool   func() bool
	setBool   func(bool)
	getInt64  func() int64
	setInt64  func(int64)
	getUint32 func() uint32
	setUint32 func(uint32)
	getUint64 func() uint64
	setUint64 func(uint64)
	getF64    func() float64
	setF64    func(float64)
	getStr    func() string
	setStr    func(string)

	// vector fields replace the whole slice atomically on update rather
	// than merging element-by-element (spec.md §4.2 vector semantics)
	getU32Vec func() []uint32
	setU32Vec func([]uint32)
}

type fieldKind int

const (
	kindBool fieldKind = iota
	kindInt64
	kindUint32
	kindUint64
	kindFloat64
	kindString
	kindUint32Vec
)

// ParamContainer is the declarative field<->path binder described in
// spec.md §4.2: a plugin registers its configuration fields once via Bind*,
// then Encode/Update move the whole set to and from a wire Envelope without
// per-field boilerplate at the call site.
type ParamContainer struct {
	mu     sync.RWMutex
	fields []*field
	// version increments on every Update call that applied at least one
	// field (even if another field's error is returned), so callers can
	// cheaply detect whether a reconfigure actually changed anything
	version atomic.Int64
}

func NewParamContainer() *ParamContainer { return &ParamContainer{} }

func (p *ParamContainer) add(f *field) {
	p.mu.Lock()
	p.fields = append(p.fields, f)
	p.mu.Unlock()
}

func (p *ParamContainer) BindBool(path string, get func() bool, set func(bool)) {
	p.add(&field{path: path, kind: kindBool, getBool: get, setBool: set})
}

func (p *ParamContainer) BindInt64(path string, get func() int64, set func(int64)) {
	p.add(&field{path: path, kind: kindInt64, getInt64: get, setInt64: set})
}

func (p *ParamContainer) BindUint32(path string, get func() uint32, set func(uint32)) {
	p.add(&field{path: path, kind: kindUint32, getUint32: get, setUint32: set})
}

func (p *ParamContainer) BindUint64(path string, get func() uint64, set func(uint64)) {
	p.add(&field{path: path, kind: kindUint64, getUint64: get, setUint64: set})
}

func (p *ParamContainer) BindFloat64(path string, get func() float64, set func(float64)) {
	p.add(&field{path: path, kind: kindFloat64, getF64: get, setF64: set})
}

func (p *ParamContainer) BindString(path string, get func() string, set func(string)) {
	p.add(&field{path: path, kind: kindString, getStr: get, setStr: set})
}

// BindUint32Vector binds a whole-slice field; Update replaces the slice in
// one atomic swap rather than appending (spec.md §4.2).
func (p *ParamContainer) BindUint32Vector(path string, get func() []uint32, set func([]uint32)) {
	p.add(&field{path: path, kind: kindUint32Vec, getU32Vec: get, setU32Vec: set})
}

// Version reports the number of Update calls so far that applied at least
// one field.
func (p *ParamContainer) Version() int64 { return p.version.Load() }

// Encode writes every bound field into e.Params at its registered path.
func (p *ParamContainer) Encode(e *Envelope) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, f := range p.fields {
		switch f.kind {
		case kindBool:
			SetParam(e, f.path, f.getBool())
		case kindInt64:
			SetParam(e, f.path, f.getInt64())
		case kindUint32:
			SetParam(e, f.path, f.getUint32())
		case kindUint64:
			SetParam(e, f.path, f.getUint64())
		case kindFloat64:
			SetParam(e, f.path, f.getF64())
		case kindString:
			SetParam(e, f.path, f.getStr())
		case kindUint32Vec:
			vec := f.getU32Vec()
			raw := make([]any, len(vec))
			for i, v := range vec {
				raw[i] = float64(v)
			}
			setAt(e.Params, splitPath(f.path), raw)
		}
	}
}

// Update reads every bound field out of e.Params, applying it via the
// field's setter. A missing path leaves the current value untouched; a
// type mismatch is accumulated in a cos.Errs and returned as one joined
// error, so one bad field
// doesn't block applying the rest (spec.md §4.2 partial-apply semantics).
func (p *ParamContainer) Update(e *Envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var errs cos.Errs
	applied := false
	for _, f := range p.fields {
		if err := p.applyOne(e, f); err != nil {
			var perr *cos.ErrParam
			if asErrParam(err, &perr) && perr.Kind == "missing" {
				continue // absent field: leave current value
			}
			errs.Add(err)
			continue
		}
		applied = true
	}
	if applied {
		p.version.Inc()
	}
	if _, err := errs.JoinErr(); err != nil {
		return err
	}
	return nil
}

func asErrParam(err error, out **cos.ErrParam) bool {
	pe, ok := err.(*cos.ErrParam)
	if ok {
		*out = pe
	}
	return ok
}

func (p *ParamContainer) applyOne(e *Envelope, f *field) error {
	switch f.kind {
	case kindBool:
		v, err := GetParam[bool](e, f.path)
		if err != nil {
			return err
		}
		f.setBool(v)
	case kindInt64:
		v, err := GetParam[int64](e, f.path)
		if err != nil {
			return err
		}
		f.setInt64(v)
	case kindUint32:
		v, err := GetParam[uint32](e, f.path)
		if err != nil {
			return err
		}
		f.setUint32(v)
	case kindUint64:
		v, err := GetParam[uint64](e, f.path)
		if err != nil {
			return err
		}
		f.setUint64(v)
	case kindFloat64:
		v, err := GetParam[float64](e, f.path)
		if err != nil {
			return err
		}
		f.setF64(v)
	case kindString:
		v, err := GetParam[string](e, f.path)
		if err != nil {
			return err
		}
		f.setStr(v)
	case kindUint32Vec:
		raw, err := e.RawValue(f.path)
		if err != nil {
			return err
		}
		arr, ok := raw.([]any)
		if !ok {
			return cos.NewErrParamTypeMismatch(f.path)
		}
		vec := make([]uint32, 0, len(arr))
		for _, el := range arr {
			fv, ok := el.(float64)
			if !ok {
				return cos.NewErrParamTypeMismatch(f.path)
			}
			vec = append(vec, uint32(fv))
		}
		f.setU32Vec(vec)
	}
	return nil
}
