// Package atomic provides thin typed wrappers over sync/atomic, used
// throughout instead of bare int64/int32/bool fields so that every
// concurrently-shared counter is self-evidently synchronized at its
// declaration site.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package atomic

import "sync/atomic"

type (
	Int64 struct{ v int64 }
	Int32 struct{ v int32 }
	Uint64 struct{ v uint64 }
	Uint32 struct{ v uint32 }
	Bool   struct{ v int32 }
)

func (i *Int64) Load() int64          { return atomic.LoadInt64(&i.v) }
func (i *Int64) Store(v int64)        { atomic.StoreInt64(&i.v, v) }
func (i *Int64) Add(d int64) int64    { return atomic.AddInt64(&i.v, d) }
func (i *Int64) Inc() int64           { return i.Add(1) }
func (i *Int64) Dec() int64           { return i.Add(-1) }
func (i *Int64) Swap(v int64) int64   { return atomic.SwapInt64(&i.v, v) }
func (i *Int64) CAS(old, n int64) bool {
	return atomic.CompareAndSwapInt64(&i.v, old, n)
}

func (i *Int32) Load() int32          { return atomic.LoadInt32(&i.v) }
func (i *Int32) Store(v int32)        { atomic.StoreInt32(&i.v, v) }
func (i *Int32) Add(d int32) int32    { return atomic.AddInt32(&i.v, d) }
func (i *Int32) Inc() int32           { return i.Add(1) }
func (i *Int32) Dec() int32           { return i.Add(-1) }
func (i *Int32) Swap(v int32) int32   { return atomic.SwapInt32(&i.v, v) }
func (i *Int32) CAS(old, n int32) bool {
	return atomic.CompareAndSwapInt32(&i.v, old, n)
}

func (i *Uint64) Load() uint64       { return atomic.LoadUint64(&i.v) }
func (i *Uint64) Store(v uint64)     { atomic.StoreUint64(&i.v, v) }
func (i *Uint64) Add(d uint64) uint64 { return atomic.AddUint64(&i.v, d) }
func (i *Uint64) Inc() uint64        { return i.Add(1) }

func (i *Uint32) Load() uint32       { return atomic.LoadUint32(&i.v) }
func (i *Uint32) Store(v uint32)     { atomic.StoreUint32(&i.v, v) }
func (i *Uint32) Add(d uint32) uint32 { return atomic.AddUint32(&i.v, d) }
func (i *Uint32) Inc() uint32        { return i.Add(1) }

func (b *Bool) Load() bool {
	return atomic.LoadInt32(&b.v) != 0
}

func (b *Bool) Store(v bool) {
	if v {
		atomic.StoreInt32(&b.v, 1)
	} else {
		atomic.StoreInt32(&b.v, 0)
	}
}

func (b *Bool) CAS(old, n bool) bool {
	var o, nn int32
	if old {
		o = 1
	}
	if n {
		nn = 1
	}
	return atomic.CompareAndSwapInt32(&b.v, o, nn)
}

func (b *Bool) Swap(v bool) (old bool) {
	var nn int32
	if v {
		nn = 1
	}
	return atomic.SwapInt32(&b.v, nn) != 0
}
