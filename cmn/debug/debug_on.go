//go:build debug

// Package provides debug utilities
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import (
	"fmt"
	"net/http"
	"sync"
)

func ON() bool { return true }

func Infof(f string, a ...any) { fmt.Printf("[DEBUG] "+f+"\n", a...) }

func Func(f func()) { f() }

func Assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprint("assertion failed", fmt.Sprint(args...)))
	}
}

func AssertFunc(f func() bool, args ...any) { Assert(f(), args...) }

func AssertNoErr(err error) {
	if err != nil {
		panic("assertion failed: " + err.Error())
	}
}

func Assertf(cond bool, f string, a ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(f, a...))
	}
}

func AssertNotPstr(v any) {
	Assertf(false, "unexpected pointer-to-string: %v", v)
}

func FailTypeCast(v any) {
	Assertf(false, "unexpected type %T: %v", v, v)
}

func AssertMutexLocked(m *sync.Mutex) {
	state := uintptr(0)
	_ = state
	_ = m
}

func AssertRWMutexLocked(_ *sync.RWMutex)  {}
func AssertRWMutexRLocked(_ *sync.RWMutex) {}

func Handlers() map[string]http.HandlerFunc {
	return nil
}
