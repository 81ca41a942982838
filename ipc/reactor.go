/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package ipc

import (
	"errors"
	"reflect"
	"time"

	"github.com/odin-detector/odin-data-sub001/cmn/cos"
	"github.com/odin-detector/odin-data-sub001/cmn/debug"
	"github.com/odin-detector/odin-data-sub001/cmn/mono"
)

// TimerCb is invoked when a registered timer fires; now is mono.NanoTime()
// at fire time. Returning fires=false cancels the timer after this call.
type TimerCb func(now int64) (next time.Duration, fires bool)

// ChanCb handles one value read off a registered channel. Returning
// cos.ErrShutdown unwinds Run cleanly; any other non-nil error propagates
// out of Run as a hard failure.
type ChanCb func(v any) error

type chanSub struct {
	id   uint32
	ch   reflect.Value
	cb   ChanCb
	name string
}

type timerSub struct {
	id   uint32
	due  int64
	ival time.Duration
	cb   TimerCb
	name string
}

// Reactor is a tickless, single-threaded event loop (spec.md §4.3): callers
// register channels (a raw socket is read on its own goroutine that relays
// onto a channel, as rx.RxService does) and timers; Run blocks multiplexing all of them on one goroutine until Stop is
// called or a callback returns cos.ErrShutdown.
//
// All registration methods must be called from the same goroutine that
// calls Run, or before Run starts - the reactor keeps no internal lock.
type Reactor struct {
	chans  []*chanSub
	timers []*timerSub
	nextID uint32
	addCh  chan func()
	stopCh chan struct{}
	err    error
}

func NewReactor() *Reactor {
	return &Reactor{
		addCh:  make(chan func(), 64),
		stopCh: make(chan struct{}),
	}
}

// RegisterChannel multiplexes ch into the loop; cb runs on the reactor
// goroutine whenever a value arrives. Returns an id usable with Unregister.
func (r *Reactor) RegisterChannel(name string, ch any, cb ChanCb) uint32 {
	rv := reflect.ValueOf(ch)
	debug.Assert(rv.Kind() == reflect.Chan, "RegisterChannel needs a channel")
	id := r.alloc()
	sub := &chanSub{id: id, ch: rv, cb: cb, name: name}
	r.mutate(func() { r.chans = append(r.chans, sub) })
	return id
}

// RegisterTimer arms a one-shot or repeating timer; cb's return value
// decides whether (and when) it fires again, same contract as hk.HKCb but
// scoped to this reactor instead of the process-wide housekeeper.
func (r *Reactor) RegisterTimer(name string, delay time.Duration, cb TimerCb) uint32 {
	id := r.alloc()
	sub := &timerSub{id: id, due: mono.NanoTime() + int64(delay), ival: delay, cb: cb, name: name}
	r.mutate(func() { r.timers = append(r.timers, sub) })
	return id
}

func (r *Reactor) alloc() uint32 {
	r.nextID++
	return r.nextID
}

// mutate queues a registration mutation for Run to apply before it next
// waits (mutations queued before Run starts are applied before its first
// wait); only when the queue is full is f applied inline.
func (r *Reactor) mutate(f func()) {
	select {
	case r.addCh <- f:
	default:
		f()
	}
}

// Unregister removes a channel or timer subscription by id.
func (r *Reactor) Unregister(id uint32) {
	r.mutate(func() {
		for i, c := range r.chans {
			if c.id == id {
				r.chans = append(r.chans[:i], r.chans[i+1:]...)
				return
			}
		}
		for i, t := range r.timers {
			if t.id == id {
				r.timers = append(r.timers[:i], r.timers[i+1:]...)
				return
			}
		}
	})
}

// Stop unblocks a running Run from another goroutine.
func (r *Reactor) Stop() { close(r.stopCh) }

// Err returns the error that caused Run to return, if any (nil on a clean
// Stop()).
func (r *Reactor) Err() error { return r.err }

// Run executes the reactor algorithm of spec.md §4.3:
//  1. drain every currently-ready channel, in registration order, so all
//     ready channels fire before timers are considered this iteration
//  2. if nothing was ready, block on registration/stop/channels with a
//     timeout capped at the next due timer (or indefinitely if none)
//  3. scan timers whose due time has passed and fire them
//  4. repeat until Stop() or a callback returns cos.ErrShutdown
//
// Run is not reentrant and must be called from one goroutine only.
func (r *Reactor) Run() error {
	for {
		if err := r.applyPending(); err != nil {
			if err == errStop {
				return nil
			}
			r.err = err
			return err
		}
		fired, err := r.drainReady()
		if err != nil {
			r.err = err
			return err
		}
		if fired {
			continue // spec: all ready channels before timers this iteration
		}
		if err := r.blockOnce(); err != nil {
			if err == errStop {
				return nil
			}
			r.err = err
			return err
		}
	}
}

// applyPending flushes any queued registration mutations without blocking.
func (r *Reactor) applyPending() error {
	for {
		select {
		case f := <-r.addCh:
			f()
		case <-r.stopCh:
			return errStop
		default:
			return nil
		}
	}
}

var errStop = errors.New("ipc: reactor stop")

// drainReady performs one non-blocking pass over every registered channel,
// in registration order, invoking callbacks for whichever are ready.
func (r *Reactor) drainReady() (fired bool, err error) {
	for _, sub := range append([]*chanSub(nil), r.chans...) {
		v, ok := sub.ch.TryRecv()
		if !v.IsValid() && !ok {
			continue // nothing buffered on sub.ch right now
		}
		fired = true
		if !ok {
			r.Unregister(sub.id)
			continue
		}
		if cbErr := sub.cb(v.Interface()); cbErr != nil {
			return fired, cbErr
		}
	}
	return fired, nil
}

// blockOnce waits for the first of: a registration, stop, any channel
// becoming ready, or the next timer's due time, then applies whichever
// fired (dispatching at most one channel callback, to keep a single
// iteration's work bounded).
func (r *Reactor) blockOnce() error {
	const (
		caseAdd = iota
		caseStop
		caseTimer
		caseFirstChan
	)
	timeout, hasTimeout := r.nextTimeout()

	cases := make([]reflect.SelectCase, 0, caseFirstChan+len(r.chans))
	cases = append(cases,
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.addCh)},
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.stopCh)},
	)
	if hasTimeout {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(time.After(timeout))})
	} else {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.Value{}})
	}
	for _, c := range r.chans {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: c.ch})
	}

	chosen, recv, recvOK := reflect.Select(cases)
	switch chosen {
	case caseAdd:
		recv.Interface().(func())()
		return nil
	case caseStop:
		return errStop
	case caseTimer:
		r.fireTimers()
		return nil
	default:
		sub := r.chans[chosen-caseFirstChan]
		if !recvOK {
			r.Unregister(sub.id)
			return nil
		}
		return sub.cb(recv.Interface())
	}
}

func (r *Reactor) nextTimeout() (time.Duration, bool) {
	if len(r.timers) == 0 {
		return 0, false
	}
	now := mono.NanoTime()
	min := r.timers[0].due
	for _, t := range r.timers[1:] {
		if t.due < min {
			min = t.due
		}
	}
	d := time.Duration(min - now)
	if d < 0 {
		d = 0
	}
	return d, true
}

func (r *Reactor) fireTimers() {
	now := mono.NanoTime()
	live := r.timers[:0]
	for _, t := range r.timers {
		if t.due > now {
			live = append(live, t)
			continue
		}
		next, again := t.cb(now)
		if !again {
			continue
		}
		t.due = now + int64(next)
		live = append(live, t)
	}
	r.timers = live
}

// RunUntilShutdown wraps Run for callers that signal termination by
// returning cos.ErrShutdown from a channel callback rather than calling
// Stop() externally - the standard shape for the receiver/processor main
// loops reacting to a "shutdown" control message.
func (r *Reactor) RunUntilShutdown() error {
	err := r.Run()
	if err == cos.ErrShutdown {
		return nil
	}
	return err
}
