//go:build !mono

// Package mono provides low-level monotonic time
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns monotonic nanoseconds elapsed since process start.
// The "mono" build tag swaps this for a runtime.nanotime linkname (see
// fast_nanotime.go) that avoids the wall-clock read entirely; this default
// variant needs no linkname and is what every non-benchmark build uses.
func NanoTime() int64 { return int64(time.Since(start)) }
