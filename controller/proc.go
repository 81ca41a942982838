/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package controller

import (
	"fmt"

	"github.com/tidwall/buntdb"

	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/plugin"
)

// PluginFactory constructs a named plugin instance given its library
// identifier (spec.md §4.10 plugin/load: "by name, index, library").
type PluginFactory func(library string) (plugin.Plugin, error)

// ConfigStore persists named sub-configurations for the store/execute
// pair (spec.md §4.10), backed by an embedded buntdb so `execute` survives
// a controller restart within the same run.
type ConfigStore struct {
	db *buntdb.DB
}

// NewConfigStore opens (or creates) a buntdb database at path. Pass ":memory:"
// for a process-local, non-persistent store.
func NewConfigStore(path string) (*ConfigStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("controller: open config store: %w", err)
	}
	return &ConfigStore{db: db}, nil
}

func (s *ConfigStore) Close() error { return s.db.Close() }

// Store saves raw under name, replacing any prior value.
func (s *ConfigStore) Store(name string, raw []byte) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(name, string(raw), nil)
		return err
	})
}

// Load returns the raw bytes previously saved under name.
func (s *ConfigStore) Load(name string) ([]byte, error) {
	var val string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(name)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("controller: config %q: %w", name, err)
	}
	return []byte(val), nil
}

// ProcessorController is the configuration dispatcher: it applies a
// cmd:configure envelope's top-level keys in insertion order (spec.md
// §4.10 Ordering), with plugin/load preceding plugin/connect, and
// plugin-specific keys applied after the graph is established within the
// same envelope.
type ProcessorController struct {
	chain      *plugin.Chain
	shm        *SharedMemoryController
	store      *ConfigStore
	factory    PluginFactory
	codec      *ipc.MessageCodec
	plugins    map[string]plugin.Plugin // keyed by plugin index/name

	debugLevel int

	// master-dataset frame-total auto-shutdown lifecycle (spec.md §4.10
	// Lifecycle; Open Question 1 decision in SPEC_FULL.md: empty master
	// name counts every dataset, a non-empty name the chain never
	// produces warns once rather than firing).
	terminalPlugin string
	masterDataset  string
	frameTotal     uint32
	frameSeen      uint32
	warnedNoMaster bool
	shutdownFn     func()
}

func NewProcessorController(chain *plugin.Chain, shm *SharedMemoryController, store *ConfigStore, factory PluginFactory, codec *ipc.MessageCodec, shutdownFn func()) *ProcessorController {
	return &ProcessorController{
		chain:      chain,
		shm:        shm,
		store:      store,
		factory:    factory,
		codec:      codec,
		plugins:    make(map[string]plugin.Plugin),
		shutdownFn: shutdownFn,
	}
}

// orderedKeys is the key order applied within a single configure envelope:
// load before connect, everything else in the Table order given by
// spec.md §4.10, with plugin-index keys applied last.
var orderedKeys = []string{
	"shutdown", "status", "debug", "ctrl_endpoint", "meta_endpoint", "fr_setup",
	"plugin/load", "plugin/connect", "plugin/disconnect", "plugin/disconnect_all",
	"store", "execute", "inject_eoa", "reset_statistics", "frames",
	"request_version", "request_commands",
}

// Configure dispatches a cmd:configure envelope's recognized top-level
// keys per the fixed order above, then forwards any remaining keys that
// name a registered plugin to that plugin's Configure.
func (p *ProcessorController) Configure(e *ipc.Envelope) error {
	for _, key := range orderedKeys {
		if _, err := e.RawValue(key); err != nil {
			continue // absent from this envelope
		}
		if err := p.dispatch(key, e); err != nil {
			nlog.Warningf("controller: configure %q: %v", key, err)
		}
	}
	for key := range e.Params {
		if isReservedKey(key) {
			continue
		}
		if pl, ok := p.plugins[key]; ok {
			if err := pl.Configure(e); err != nil {
				nlog.Warningf("controller: plugin %q configure: %v", key, err)
			}
		}
	}
	return nil
}

func isReservedKey(key string) bool {
	for _, k := range orderedKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (p *ProcessorController) dispatch(key string, e *ipc.Envelope) error {
	switch key {
	case "shutdown":
		p.shutdownFn()
	case "status":
		// handled by the reply path (Status), nothing to apply here
	case "debug":
		if v, err := ipc.GetParam[int64](e, "debug"); err == nil {
			p.debugLevel = int(v)
		}
	case "ctrl_endpoint", "meta_endpoint":
		// bind addresses are consumed at startup by cmd/frame-processor; a
		// live rebind is out of scope (spec.md Non-goals: hot endpoint swap)
	case "fr_setup":
		// shared-memory (re)attach is driven by notify:buffer_config via
		// SharedMemoryController.OnMessage, not by this key directly
	case "plugin/load":
		return p.pluginLoad(e)
	case "plugin/connect":
		return p.pluginConnect(e)
	case "plugin/disconnect":
		return p.pluginDisconnect(e)
	case "plugin/disconnect_all":
		p.pluginDisconnectAll()
	case "store":
		return p.storeNamed(e)
	case "execute":
		return p.executeNamed(e)
	case "inject_eoa":
		return p.injectEOA(e)
	case "reset_statistics":
		for _, pl := range p.plugins {
			pl.ResetStatistics()
		}
	case "frames":
		return p.armFrameTotal(e)
	case "request_version", "request_commands":
		// introspection replies are assembled by ReplyVersion/ReplyCommands,
		// invoked separately by the message-handling loop on ack
	}
	return nil
}

func (p *ProcessorController) pluginLoad(e *ipc.Envelope) error {
	index, err := ipc.GetParam[string](e, "plugin/load/index")
	if err != nil {
		return err
	}
	name, err := ipc.GetParam[string](e, "plugin/load/name")
	if err != nil {
		return err
	}
	library, _ := ipc.GetParam[string](e, "plugin/load/library")
	if p.factory == nil {
		return fmt.Errorf("controller: no plugin factory configured")
	}
	pl, err := p.factory(library)
	if err != nil {
		return fmt.Errorf("controller: load plugin %q (%s): %w", index, name, err)
	}
	p.plugins[index] = pl
	p.chain.Register(pl)
	return nil
}

func (p *ProcessorController) pluginConnect(e *ipc.Envelope) error {
	index, err := ipc.GetParam[string](e, "plugin/connect/index")
	if err != nil {
		return err
	}
	connection, err := ipc.GetParam[string](e, "plugin/connect/connection")
	if err != nil {
		return err
	}
	if connection == "frame_receiver" {
		if p.shm != nil {
			p.shm.RegisterCallback(index, func(f *frame.Frame) error { return p.chain.Push(index, f) })
		}
		return nil
	}
	return p.chain.Connect(connection, index, true)
}

func (p *ProcessorController) pluginDisconnect(e *ipc.Envelope) error {
	index, err := ipc.GetParam[string](e, "plugin/disconnect/index")
	if err != nil {
		return err
	}
	p.chain.RemoveCallback(index)
	if p.shm != nil {
		p.shm.RemoveCallback(index)
	}
	return nil
}

func (p *ProcessorController) pluginDisconnectAll() {
	for name := range p.plugins {
		p.chain.RemoveCallback(name)
		if p.shm != nil {
			p.shm.RemoveCallback(name)
		}
	}
}

func (p *ProcessorController) storeNamed(e *ipc.Envelope) error {
	name, err := ipc.GetParam[string](e, "store")
	if err != nil {
		return err
	}
	if p.store == nil {
		return fmt.Errorf("controller: no config store configured")
	}
	raw, err := p.codec.Encode(e)
	if err != nil {
		return err
	}
	return p.store.Store(name, raw)
}

func (p *ProcessorController) executeNamed(e *ipc.Envelope) error {
	name, err := ipc.GetParam[string](e, "execute")
	if err != nil {
		return err
	}
	if p.store == nil {
		return fmt.Errorf("controller: no config store configured")
	}
	raw, err := p.store.Load(name)
	if err != nil {
		return err
	}
	saved, err := p.codec.Decode(raw)
	if err != nil {
		return err
	}
	return p.Configure(saved)
}

func (p *ProcessorController) injectEOA(e *ipc.Envelope) error {
	target := p.terminalPlugin
	if v, err := ipc.GetParam[string](e, "inject_eoa"); err == nil && v != "" {
		target = v
	}
	if target == "" {
		return fmt.Errorf("controller: inject_eoa: no target plugin")
	}
	return p.chain.InjectEOA(target)
}

// armFrameTotal handles the `frames` configure key: { terminal_plugin,
// master_dataset (optional), total } arms SetFrameTotal and registers the
// counting observer on the named terminal plugin's chain node.
func (p *ProcessorController) armFrameTotal(e *ipc.Envelope) error {
	terminal, err := ipc.GetParam[string](e, "frames/terminal_plugin")
	if err != nil {
		return err
	}
	total, err := ipc.GetParam[uint32](e, "frames/total")
	if err != nil {
		return err
	}
	master, _ := ipc.GetParam[string](e, "frames/master_dataset")

	p.SetFrameTotal(terminal, master, total)
	p.chain.Observe(terminal, func(f *frame.Frame) { p.ObserveTerminalFrame(f.DatasetName) })
	return nil
}

// SetFrameTotal arms the master-dataset auto-shutdown lifecycle: once
// masterDataset (or every dataset, if empty) produces total frames through
// terminalPlugin, the controller signals shutdown after queues drain.
func (p *ProcessorController) SetFrameTotal(terminalPlugin, masterDataset string, total uint32) {
	p.terminalPlugin = terminalPlugin
	p.masterDataset = masterDataset
	p.frameTotal = total
	p.frameSeen = 0
	p.warnedNoMaster = false
}

// ObserveTerminalFrame is the frame-counting callback the controller
// registers on the terminal plugin (spec.md §4.10 Lifecycle). datasetName
// is the Frame's dataset at the point it reaches the terminal plugin.
func (p *ProcessorController) ObserveTerminalFrame(datasetName string) {
	if p.frameTotal == 0 {
		return
	}
	if p.masterDataset != "" && datasetName != p.masterDataset {
		if !p.warnedNoMaster {
			nlog.Warningf("controller: master dataset %q configured but chain produced %q; auto-shutdown counter will not advance from this frame", p.masterDataset, datasetName)
			p.warnedNoMaster = true
		}
		return
	}
	p.frameSeen++
	if p.frameSeen >= p.frameTotal {
		p.shutdownFn()
	}
}

// ReplyVersion fills reply with every loaded plugin's reported version
// (spec.md §4.10 request_version).
func (p *ProcessorController) ReplyVersion(reply *ipc.Envelope) {
	for name, pl := range p.plugins {
		v := pl.Version()
		ipc.SetParam(reply, name+"/major", int64(v.Major))
		ipc.SetParam(reply, name+"/minor", int64(v.Minor))
		ipc.SetParam(reply, name+"/patch", int64(v.Patch))
		ipc.SetParam(reply, name+"/short", v.Short)
	}
}

// ReplyCommands lists the recognized configuration keys (spec.md §4.10
// request_commands).
func (p *ProcessorController) ReplyCommands(reply *ipc.Envelope) {
	for _, key := range orderedKeys {
		ipc.SetParam(reply, "commands[]", key)
	}
}

// Status asks every loaded plugin to fill the reply (spec.md §4.10 status),
// then folds in any process_frame panic the chain recorded for that plugin
// (spec.md §7 PluginFailure's "last_error visible in status").
func (p *ProcessorController) Status(reply *ipc.Envelope) {
	for name, pl := range p.plugins {
		pl.Status(reply)
		if err := p.chain.LastError(name); err != nil {
			ipc.SetParam(reply, name+"/last_error", err.Error())
		}
	}
}
