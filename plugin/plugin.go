// Package plugin implements the Plugin trait and chain (spec.md §4.9): a
// worker-per-node DAG that fans Frames out from SharedMemoryController to
// whatever terminal sinks a configuration wires up.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package plugin

import (
	"fmt"
	"sync"

	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
)

// Version is the static (major, minor, patch, short, long) tuple every
// plugin reports (spec.md §4.9 version()).
type Version struct {
	Major, Minor, Patch int
	Short, Long          string
}

// Plugin is the capability set every chain node implements.
type Plugin interface {
	Name() string
	// ProcessFrame runs on the plugin's one worker goroutine for every
	// delivered Frame. It may mutate metadata or replace the payload; once
	// it returns, the chain passes that same Frame to every downstream edge
	// unless ProcessFrame panicked. A plugin cannot emit further Frames or
	// withhold this one. It must not block indefinitely.
	ProcessFrame(f *frame.Frame)
	// Configure is idempotent: applying the same envelope twice yields the
	// same state. Unknown keys must not fault.
	Configure(e *ipc.Envelope) error
	RequestConfiguration(reply *ipc.Envelope)
	Status(reply *ipc.Envelope)
	Version() Version
	ResetStatistics()
}

// MetaItem is one published record on a plugin's meta side channel
// (spec.md §4.9 "Meta side channel").
type MetaItem struct {
	Plugin string
	Item   string
	Value  any
	Header map[string]any
}

// node wraps a registered Plugin with its worker queue and downstream edges.
type node struct {
	name       string
	p          Plugin
	inbox      chan *frame.Frame
	downstream []edge
	done       chan struct{}
	observer   func(*frame.Frame)

	mu      sync.Mutex
	lastErr error // most recent process_frame panic, surfaced via Chain.LastError
}

type edge struct {
	name     string
	blocking bool
}

const defaultInboxSize = 256

// Chain is the administratively-managed plugin DAG: one worker goroutine
// per registered plugin, frames fanned out along registered edges, cycle
// rejection in Connect (spec.md §4.9 "Cycle prevention").
type Chain struct {
	nodes map[string]*node
	order []string // registration order, for deterministic fan-out/shutdown
	meta  chan MetaItem
}

func NewChain() *Chain {
	return &Chain{nodes: make(map[string]*node), meta: make(chan MetaItem, 1024)}
}

// Meta is the shared PUB-socket-equivalent every plugin publishes onto;
// external collectors drain it without touching the main Frame path.
func (c *Chain) Meta() <-chan MetaItem { return c.meta }

// Publisher returns the publish_meta closure a concrete plugin constructor
// binds, so plugins never need a reference to the Chain itself.
func (c *Chain) Publisher(pluginName string) func(item string, value any, header map[string]any) {
	return func(item string, value any, header map[string]any) {
		c.publish(MetaItem{Plugin: pluginName, Item: item, Value: value, Header: header})
	}
}

func (c *Chain) publish(item MetaItem) {
	select {
	case c.meta <- item:
	default:
		nlog.Warningf("plugin: meta channel full, dropping %s/%s", item.Plugin, item.Item)
	}
}

// Register adds a plugin to the chain with its own worker goroutine.
// Re-registering the same name replaces the prior node with a fresh one
// that has no downstream edges and no observer; a repeated Connect of the
// same edge only updates its blocking flag.
func (c *Chain) Register(p Plugin) {
	name := p.Name()
	if old, ok := c.nodes[name]; ok {
		close(old.done)
	} else {
		c.order = append(c.order, name)
	}
	n := &node{name: name, p: p, inbox: make(chan *frame.Frame, defaultInboxSize), done: make(chan struct{})}
	c.nodes[name] = n
	go c.runWorker(n)
}

// Connect registers a downstream edge from `name` to `downstream`,
// rejecting any edge that would create a cycle (DFS from downstream back
// to name).
func (c *Chain) Connect(name, downstream string, blocking bool) error {
	if _, ok := c.nodes[name]; !ok {
		return fmt.Errorf("plugin: connect: unknown source %q", name)
	}
	if _, ok := c.nodes[downstream]; !ok {
		return fmt.Errorf("plugin: connect: unknown downstream %q", downstream)
	}
	if c.reaches(downstream, name) {
		return fmt.Errorf("plugin: connect %s->%s would create a cycle", name, downstream)
	}
	src := c.nodes[name]
	for i, e := range src.downstream {
		if e.name == downstream {
			src.downstream[i].blocking = blocking
			return nil
		}
	}
	src.downstream = append(src.downstream, edge{name: downstream, blocking: blocking})
	return nil
}

// reaches reports whether a DFS from `from` can reach `to` along existing
// downstream edges.
func (c *Chain) reaches(from, to string) bool {
	if from == to {
		return true
	}
	visited := make(map[string]bool)
	var dfs func(string) bool
	dfs = func(cur string) bool {
		if cur == to {
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
		n, ok := c.nodes[cur]
		if !ok {
			return false
		}
		for _, e := range n.downstream {
			if dfs(e.name) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}

// RemoveCallback is a no-op on an absent name (spec.md §4.9).
func (c *Chain) RemoveCallback(name string) {
	n, ok := c.nodes[name]
	if !ok {
		return
	}
	close(n.done)
	delete(c.nodes, name)
	for i, nm := range c.order {
		if nm == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	for _, other := range c.nodes {
		for i, e := range other.downstream {
			if e.name == name {
				other.downstream = append(other.downstream[:i], other.downstream[i+1:]...)
				break
			}
		}
	}
}

// InboxDepth reports the current queue depth of a registered plugin's
// worker inbox, e.g. for a stats gauge; returns 0 for an unknown name.
func (c *Chain) InboxDepth(name string) int {
	n, ok := c.nodes[name]
	if !ok {
		return 0
	}
	return len(n.inbox)
}

// Observe registers a callback invoked with every Frame that finishes
// ProcessFrame on the named node, before fan-out to its downstream edges -
// the hook ProcessorController uses for frame-counting auto-shutdown on the
// terminal plugin. A nil fn clears the observer.
func (c *Chain) Observe(name string, fn func(*frame.Frame)) {
	if n, ok := c.nodes[name]; ok {
		n.observer = fn
	}
}

// LastError reports the error recorded by the most recent process_frame
// panic on the named node, or nil if it has never panicked (spec.md §7
// PluginFailure: "the plugin records a last_error visible in status").
// Returns nil for an unknown name.
func (c *Chain) LastError(name string) error {
	n, ok := c.nodes[name]
	if !ok {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastErr
}

// Push places f on name's inbox; used by SharedMemoryController to feed
// the chain's entry points.
func (c *Chain) Push(name string, f *frame.Frame) error {
	n, ok := c.nodes[name]
	if !ok {
		return fmt.Errorf("plugin: push: unknown plugin %q", name)
	}
	f.Acquire()
	n.inbox <- f
	return nil
}

func (c *Chain) runWorker(n *node) {
	for {
		select {
		case f, ok := <-n.inbox:
			if !ok {
				return
			}
			c.dispatch(n, f)
		case <-n.done:
			return
		}
	}
}

func (c *Chain) dispatch(n *node, f *frame.Frame) {
	defer f.Release()
	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				err := fmt.Errorf("process_frame panic: %v", r)
				n.mu.Lock()
				n.lastErr = err
				n.mu.Unlock()
				nlog.Errorf("plugin %s: %v", n.name, err)
			}
		}()
		n.p.ProcessFrame(f)
	}()
	if panicked {
		return // spec.md §7: the chain continues, but the offending Frame is dropped
	}
	if n.observer != nil {
		n.observer(f)
	}
	for _, e := range n.downstream {
		down, ok := c.nodes[e.name]
		if !ok {
			continue
		}
		f.Acquire()
		if e.blocking {
			down.inbox <- f // back-pressures this worker until accepted
		} else {
			select {
			case down.inbox <- f:
			default:
				nlog.Warningf("plugin: %s->%s inbox full, dropping frame %d", n.name, e.name, f.FrameNumber)
				f.Release()
			}
		}
	}
}

// InjectEOA pushes a sentinel end-of-acquisition Frame into the named
// entry plugin so stateful plugins can flush (spec.md §4.7 "End-of-
// acquisition").
func (c *Chain) InjectEOA(name string) error {
	sentinel := frame.NewOwned(frame.Metadata{DatasetName: "end_of_acquisition"}, nil)
	return c.Push(name, sentinel)
}

// Shutdown stops every worker goroutine.
func (c *Chain) Shutdown() {
	for _, n := range c.nodes {
		close(n.done)
	}
}
