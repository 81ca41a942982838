// Package hk provides a mechanism for registering cleanup and maintenance
// functions invoked at specified intervals - distinct from the per-reactor
// timer wheel (ipc.Reactor), hk is the process-wide background janitor used
// for concerns that don't belong to any one reactor; both binaries register
// a periodic log flush on it.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"time"

	"github.com/odin-detector/odin-data-sub001/cmn/debug"
	"github.com/odin-detector/odin-data-sub001/cmn/mono"
)

const (
	// NameSuffix disambiguates an hk job name from the subsystem name it is
	// registered under, e.g. trname+hk.NameSuffix
	NameSuffix = ".hk"

	// UnregInterval, returned from a job callback, means "stop calling me"
	UnregInterval = time.Duration(-1)

	DefaultIval  = 20 * time.Second
	Prune2mIval  = 2 * time.Minute
)

type (
	// f runs at the next-due time and returns the duration until its next
	// run; returning UnregInterval removes it.
	HKCb func(now int64) time.Duration

	request struct {
		f        HKCb
		name     string
		interval time.Duration
		initTime int64
		unreg    bool
	}
	entry struct {
		f        HKCb
		name     string
		interval time.Duration
		due      int64
	}
	housekeeper struct {
		entries []*entry
		byName  map[string]*entry
		workCh  chan request
		stopCh  chan struct{}
		started chan struct{}
	}
)

// DefaultHK is the one process-wide housekeeper instance; both the receiver
// and the processor binary start it in main.
var DefaultHK = newHK()

func newHK() *housekeeper {
	return &housekeeper{
		byName:  make(map[string]*entry, 16),
		workCh:  make(chan request, 64),
		stopCh:  make(chan struct{}),
		started: make(chan struct{}),
	}
}

// TestInit resets DefaultHK for unit tests that run several independent
// housekeeping scenarios in one process.
func TestInit() { DefaultHK = newHK() }

// Reg registers a named periodic job; re-registering the same name replaces it.
func Reg(name string, f HKCb, interval time.Duration) {
	DefaultHK.reg(name, f, interval)
}

// Unreg removes a named job; a no-op if the name is absent.
func Unreg(name string) { DefaultHK.unreg(name) }

func (hk *housekeeper) reg(name string, f HKCb, interval time.Duration) {
	debug.Assert(interval > 0, name)
	hk.workCh <- request{name: name, f: f, interval: interval, initTime: mono.NanoTime()}
}

func (hk *housekeeper) unreg(name string) {
	hk.workCh <- request{name: name, unreg: true}
}

// WaitStarted blocks until Run's main loop has entered its poll, so tests
// registering jobs immediately after calling `go DefaultHK.Run()` don't race
// the first tick.
func WaitStarted() { <-DefaultHK.started }

func (hk *housekeeper) Run() {
	close(hk.started)
	const idle = time.Hour

	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		timeout := hk.nextTimeout()
		timer.Reset(timeout)
		select {
		case req := <-hk.workCh:
			if !timer.Stop() {
				<-timer.C
			}
			hk.apply(req)
		case <-timer.C:
			hk.fire()
		case <-hk.stopCh:
			return
		}
	}
}

func (hk *housekeeper) Stop() { close(hk.stopCh) }

func (hk *housekeeper) apply(req request) {
	if req.unreg {
		if e, ok := hk.byName[req.name]; ok {
			delete(hk.byName, req.name)
			hk.removeEntry(e)
		}
		return
	}
	e := &entry{f: req.f, name: req.name, interval: req.interval, due: req.initTime + int64(req.interval)}
	if old, ok := hk.byName[req.name]; ok {
		hk.removeEntry(old)
	}
	hk.byName[req.name] = e
	hk.entries = append(hk.entries, e)
}

func (hk *housekeeper) removeEntry(e *entry) {
	for i, x := range hk.entries {
		if x == e {
			hk.entries = append(hk.entries[:i], hk.entries[i+1:]...)
			return
		}
	}
}

func (hk *housekeeper) nextTimeout() time.Duration {
	if len(hk.entries) == 0 {
		return time.Hour
	}
	now := mono.NanoTime()
	min := hk.entries[0].due
	for _, e := range hk.entries[1:] {
		if e.due < min {
			min = e.due
		}
	}
	d := time.Duration(min - now)
	if d < 0 {
		return 0
	}
	if d > time.Hour {
		return time.Hour
	}
	return d
}

func (hk *housekeeper) fire() {
	now := mono.NanoTime()
	due := hk.entries[:0]
	for _, e := range hk.entries {
		if e.due > now {
			due = append(due, e)
			continue
		}
		next := e.f(now)
		if next == UnregInterval {
			delete(hk.byName, e.name)
			continue
		}
		e.due = now + int64(next)
		due = append(due, e)
	}
	hk.entries = due
}
