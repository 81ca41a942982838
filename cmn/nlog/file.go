// Package nlog - aistore logger, provides buffering, timestamping, writing, and
// flushing/syncing/rotating
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	toStderr     bool
	alsoToStderr bool

	logDir  string
	aisrole string // "rx" | "fp"
	title   string

	host, _ = os.Hostname()
	pid     = os.Getpid()

	sevText = [...]string{sevInfo: "INFO", sevWarn: "WARNING", sevErr: "ERROR"}

	redactFnames = map[string]struct{}{} // source file basenames never echoed in the log line

	nlogs         [3]*nlog
	onceInitFiles sync.Once

	pool = sync.Pool{}
)

func initFiles() {
	now := time.Now()
	for _, sev := range []severity{sevInfo, sevErr} {
		nlogs[sev] = newNlog(sev)
		if logDir == "" {
			toStderr = true // no log directory: stderr only
			continue
		}
		nlogs[sev].rotate(now) //nolint:errcheck // on failure the log is marked erred and writes go to stderr
	}
}

func sname() string {
	role := aisrole
	if role == "" {
		role = "odin"
	}
	return role
}

// fcreate opens a fresh log file for the given severity tag, returning the
// file, its name, and any error - called at startup and upon rotation
func fcreate(tag string, now time.Time) (f *os.File, name string, err error) {
	dir := logDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}
	name, link := logfname(tag, now)
	fpath := filepath.Join(dir, name)
	f, err = os.OpenFile(fpath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", err
	}
	symlink := filepath.Join(dir, link)
	os.Remove(symlink)
	os.Symlink(name, symlink) //nolint:errcheck // best-effort convenience link

	return f, name, nil
}

func assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprint(append([]any{"nlog assertion failed: "}, args...)...))
	}
}

// fixed is a reusable byte buffer with a simple bump-allocated write offset,
// flushed wholesale to the destination file or stderr
type fixed struct {
	buf  []byte
	woff int
}

func (f *fixed) reset()        { f.woff = 0 }
func (f *fixed) size() int     { return len(f.buf) }
func (f *fixed) avail() int    { return len(f.buf) - f.woff }
func (f *fixed) length() int   { return f.woff }
func (f *fixed) eol()          { f.writeByte('\n') }
func (f *fixed) writeByte(b byte) {
	if f.woff < len(f.buf) {
		f.buf[f.woff] = b
		f.woff++
	}
}
func (f *fixed) writeString(s string) {
	n := copy(f.buf[f.woff:], s)
	f.woff += n
}
func (f *fixed) Write(p []byte) (int, error) {
	n := copy(f.buf[f.woff:], p)
	f.woff += n
	return n, nil
}
func (f *fixed) flush(w *os.File) (int, error) {
	if f.woff == 0 || w == nil {
		return 0, nil
	}
	return w.Write(f.buf[:f.woff])
}
