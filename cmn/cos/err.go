// Package cos provides common low-level types and utilities for all aistore projects
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"sync"
	ratomic "sync/atomic"
	"syscall"

	"github.com/odin-detector/odin-data-sub001/cmn/debug"
	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
)

type (
	ErrNotFound struct {
		what string
	}
	ErrSignal struct {
		signal syscall.Signal
	}
	Errs struct {
		errs []error
		cnt  int64
		mu   sync.Mutex
	}
)

// ErrNotFound

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}

func (e *ErrNotFound) Error() string { return e.what + " does not exist" }

func IsErrNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

// Errs
// add Unwrap() if need be

const maxErrs = 4

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	// first, check for duplication
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...) // up to maxErrs
		e.mu.Unlock()
	}
	return
}

// Errs is an error
func (e *Errs) Error() (s string) {
	var (
		err error
		cnt = e.Cnt()
	)
	if cnt == 0 {
		return
	}
	e.mu.Lock()
	if cnt = len(e.errs); cnt > 0 {
		err = e.errs[0]
	}
	e.mu.Unlock()
	if err == nil {
		return // unlikely
	}
	if cnt > 1 {
		err = fmt.Errorf("%v (and %d more error%s)", err, cnt-1, Plural(cnt-1))
	}
	s = err.Error()
	return
}

//
// IS-syscall helpers
//

func UnwrapSyscallErr(err error) error {
	if syscallErr, ok := err.(*os.SyscallError); ok {
		return syscallErr.Unwrap()
	}
	return nil
}

func IsErrSyscallTimeout(err error) bool {
	syscallErr, ok := err.(*os.SyscallError)
	return ok && syscallErr.Timeout()
}

// likely out of socket descriptors
func IsErrConnectionNotAvail(err error) (yes bool) {
	return errors.Is(err, syscall.EADDRNOTAVAIL)
}

// retriable conn errs
func IsErrConnectionRefused(err error) (yes bool) { return errors.Is(err, syscall.ECONNREFUSED) }
func IsErrConnectionReset(err error) (yes bool)   { return errors.Is(err, syscall.ECONNRESET) }
func IsErrBrokenPipe(err error) (yes bool)        { return errors.Is(err, syscall.EPIPE) }

func IsRetriableConnErr(err error) (yes bool) {
	return IsErrConnectionRefused(err) || IsErrConnectionReset(err) || IsErrBrokenPipe(err)
}

func IsErrOOS(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}

func IsErrDNSLookup(err error) bool {
	_, ok := err.(*net.DNSError)
	return ok
}

// IsUnreachable reports whether a control-channel dial should be retried
// rather than treated as a fatal bind/connect failure (spec §7 BindFailure:
// fatal at startup, non-fatal at reconfiguration).
func IsUnreachable(err error) bool {
	return IsErrConnectionRefused(err) ||
		IsErrDNSLookup(err) ||
		errors.Is(err, context.DeadlineExceeded)
}

//
// ErrSignal
//

// https://tldp.org/LDP/abs/html/exitcodes.html
func (e *ErrSignal) ExitCode() int               { return 128 + int(e.signal) }
func NewSignalError(s syscall.Signal) *ErrSignal { return &ErrSignal{signal: s} }
func (e *ErrSignal) Error() string               { return fmt.Sprintf("Signal %d", e.signal) }

//
// Abnormal Termination
//

const fatalPrefix = "FATAL ERROR: "

func Exitf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	_exit(msg)
}

// +log
func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	if flag.Parsed() {
		nlog.ErrorDepth(1, msg+"\n")
		nlog.Flush(true)
	}
	_exit(msg)
}

func ExitLog(a ...any) {
	msg := fatalPrefix + fmt.Sprint(a...)
	if flag.Parsed() {
		nlog.ErrorDepth(1, msg+"\n")
		nlog.Flush(true)
	}
	_exit(msg)
}

func _exit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

//
// error taxonomy (spec §7) - typed errors for the failure kinds below;
// other failures (socket binds, plugin loading, config store access) are
// returned as plain wrapped errors
//

type (
	// malformed JSON or wire packet; recovered locally, never fatal
	ErrDecode struct {
		Offset int
		Reason string
	}
	// configuration/message path lookup failure (ipc.MessageCodec, ipc.ParamContainer)
	ErrParam struct {
		Path string
		Kind string // "missing" | "type_mismatch"
	}
	// no empty slot available on new-frame arrival (shmem.SharedBufferManager)
	ErrSlotExhaustion struct {
		FrameNumber uint32
	}
	// expected packets never arrived within frame_timeout_ms
	ErrFrameTimeout struct {
		FrameNumber    uint32
		PacketsLost    int
	}
	// a plugin's process_frame or configure raised; chain continues
	ErrPluginFailure struct {
		Plugin string
		Cause  error
	}
	// caller computed a negative absolute frame offset
	ErrFrameOffsetUnderflow struct {
		FrameNumber int64
		Delta       int64
	}
	// pseudo-error used to unwind reactor/controller loops cleanly
	ErrShutdownRequested struct{}
)

func NewErrDecode(offset int, reason string) *ErrDecode { return &ErrDecode{offset, reason} }
func (e *ErrDecode) Error() string {
	return fmt.Sprintf("message decode failed at offset %d: %s", e.Offset, e.Reason)
}

func NewErrParamMissing(path string) *ErrParam      { return &ErrParam{path, "missing"} }
func NewErrParamTypeMismatch(path string) *ErrParam { return &ErrParam{path, "type_mismatch"} }
func (e *ErrParam) Error() string                   { return fmt.Sprintf("param %q: %s", e.Path, e.Kind) }
func (e *ErrParam) Is(target error) bool {
	t, ok := target.(*ErrParam)
	return ok && t.Kind == e.Kind
}

func NewErrSlotExhaustion(frame uint32) *ErrSlotExhaustion { return &ErrSlotExhaustion{frame} }
func (e *ErrSlotExhaustion) Error() string {
	return fmt.Sprintf("no empty slot for frame %d, entering drop mode", e.FrameNumber)
}

func NewErrFrameTimeout(frame uint32, lost int) *ErrFrameTimeout {
	return &ErrFrameTimeout{frame, lost}
}
func (e *ErrFrameTimeout) Error() string {
	return fmt.Sprintf("frame %d timed out, %d packet%s lost", e.FrameNumber, e.PacketsLost, Plural(e.PacketsLost))
}

func NewErrPluginFailure(plugin string, cause error) *ErrPluginFailure {
	return &ErrPluginFailure{plugin, cause}
}
func (e *ErrPluginFailure) Error() string { return fmt.Sprintf("plugin %q: %v", e.Plugin, e.Cause) }
func (e *ErrPluginFailure) Unwrap() error { return e.Cause }

func NewErrFrameOffsetUnderflow(frame, delta int64) *ErrFrameOffsetUnderflow {
	return &ErrFrameOffsetUnderflow{frame, delta}
}
func (e *ErrFrameOffsetUnderflow) Error() string {
	return fmt.Sprintf("frame_number(%d) + offset(%d) < 0", e.FrameNumber, e.Delta)
}

var ErrShutdown = &ErrShutdownRequested{}

func (*ErrShutdownRequested) Error() string { return "shutdown requested" }
