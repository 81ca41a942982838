// Command frame-processor accepts a receiver's frame-ready notifications,
// fans each frame through a configurable plugin chain, and answers
// configuration/status requests from one or more client connections.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odin-detector/odin-data-sub001/admin"
	"github.com/odin-detector/odin-data-sub001/cmn"
	"github.com/odin-detector/odin-data-sub001/cmn/cos"
	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
	"github.com/odin-detector/odin-data-sub001/controller"
	"github.com/odin-detector/odin-data-sub001/hk"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/plugin"
	"github.com/odin-detector/odin-data-sub001/plugins/dummy"
	"github.com/odin-detector/odin-data-sub001/plugins/lz4compress"
	"github.com/odin-detector/odin-data-sub001/plugins/metapublish"
	"github.com/odin-detector/odin-data-sub001/plugins/offsetadjust"
	"github.com/odin-detector/odin-data-sub001/plugins/paramadjust"
	"github.com/odin-detector/odin-data-sub001/shmem"
	"github.com/odin-detector/odin-data-sub001/stats"
)

var (
	rxEndpoint     string
	clientEndpoint string
	adminAddr      string
	sharedBuffer   string
	configStore    string
	logDir         string
	debugLevel     int
)

func init() {
	flag.StringVar(&rxEndpoint, "ctrl", ":9001", "listen address the receiver dials for ready/release notifications")
	flag.StringVar(&clientEndpoint, "client-ctrl", ":9002", "listen address configuration clients dial")
	flag.StringVar(&adminAddr, "admin", ":9003", "read-only HTTP status/metrics address")
	flag.StringVar(&sharedBuffer, "shared-buffer-name", "rx_buffer", "shared memory segment name to attach (must already exist)")
	flag.StringVar(&configStore, "config-store", ":memory:", "buntdb path for store/execute named sub-configurations")
	flag.StringVar(&logDir, "log-dir", "", "log directory; empty logs to stderr only")
	flag.IntVar(&debugLevel, "debug-level", 0, "process-wide log verbosity")
}

func main() {
	flag.Parse()
	cmn.Rom.SetDebugLevel(debugLevel)
	if logDir != "" {
		nlog.SetLogDirRole(logDir, "fp")
	}

	mgr, err := shmem.OpenExisting(sharedBuffer)
	if err != nil {
		cos.ExitLogf("frame-processor: attach shared memory %q: %v", sharedBuffer, err)
	}
	defer mgr.Close(false)

	go hk.DefaultHK.Run()
	hk.Reg("log-flush"+hk.NameSuffix, func(int64) time.Duration { nlog.Flush(false); return hk.DefaultIval }, hk.DefaultIval)
	defer hk.DefaultHK.Stop()

	codec := ipc.NewMessageCodec(true)
	chain := plugin.NewChain()

	rxListener, err := ipc.Listen(rxEndpoint, codec)
	if err != nil {
		cos.ExitLogf("frame-processor: listen %s: %v", rxEndpoint, err)
	}
	defer rxListener.Close()

	rxConn, err := rxListener.Accept()
	if err != nil {
		cos.ExitLogf("frame-processor: accept receiver: %v", err)
	}

	shm := controller.NewSharedMemoryController(rxConn, mgr, false)

	store, err := controller.NewConfigStore(configStore)
	if err != nil {
		cos.ExitLogf("frame-processor: %v", err)
	}
	defer store.Close()

	reactor := ipc.NewReactor()
	shutdownRequested := make(chan struct{})
	shutdownOnce := func() func() {
		done := false
		return func() {
			if !done {
				done = true
				close(shutdownRequested)
				reactor.Stop()
			}
		}
	}()

	inboxDepth := stats.NewPluginInboxDepth()
	proc := controller.NewProcessorController(chain, shm, store, pluginFactory(chain, inboxDepth), codec, shutdownOnce)

	reactor.RegisterChannel("rx-ctrl", rxConn.Recv(), shm.OnMessage)

	clientListener, err := ipc.Listen(clientEndpoint, codec)
	if err != nil {
		cos.ExitLogf("frame-processor: listen %s: %v", clientEndpoint, err)
	}
	defer clientListener.Close()
	go acceptClients(clientListener, reactor, proc)

	adminSrv := admin.New(inboxDepth.Registry(), proc.Status)
	go func() {
		if err := adminSrv.ListenAndServe(adminAddr); err != nil {
			nlog.Warningf("frame-processor: admin server: %v", err)
		}
	}()

	installSignalHandler(shutdownOnce)

	nlog.Infof("frame-processor: ready, rx=%s client=%s admin=%s", rxEndpoint, clientEndpoint, adminAddr)
	if err := reactor.RunUntilShutdown(); err != nil {
		nlog.Flush(true)
		cos.ExitLogf("frame-processor: %v", err)
	}
	_ = adminSrv.Shutdown()
	chain.Shutdown()
	nlog.Flush(true)
}

// acceptClients loops accepting configuration client connections and wires
// each one's envelope channel into the shared reactor; multiple clients may
// be connected concurrently (spec.md §4.10 is silent on a connection cap).
func acceptClients(ln *ipc.Listener, reactor *ipc.Reactor, proc *controller.ProcessorController) {
	for i := 0; ; i++ {
		t, err := ln.Accept()
		if err != nil {
			nlog.Warningf("frame-processor: client accept: %v", err)
			return
		}
		name := fmt.Sprintf("client-%d", i)
		reactor.RegisterChannel(name, t.Recv(), clientHandler(t, proc))
	}
}

func clientHandler(t *ipc.Transport, proc *controller.ProcessorController) ipc.ChanCb {
	return func(v any) error {
		e := v.(*ipc.Envelope)
		if !e.Strict() {
			return nil
		}
		switch e.Val {
		case ipc.ValConfigure:
			if err := proc.Configure(e); err != nil {
				return sendNack(t, e, err)
			}
			return sendAck(t, e, ipc.ValConfigure)
		case ipc.ValRequestConfiguration:
			reply := ipc.NewEnvelope(ipc.MsgAck, ipc.ValRequestConfiguration, e.ID)
			return t.Send(reply)
		case ipc.ValStatus:
			reply := ipc.NewEnvelope(ipc.MsgAck, ipc.ValStatus, e.ID)
			proc.Status(reply)
			return t.Send(reply)
		case ipc.ValRequestVersion:
			reply := ipc.NewEnvelope(ipc.MsgAck, ipc.ValRequestVersion, e.ID)
			proc.ReplyVersion(reply)
			return t.Send(reply)
		case ipc.ValRequestCommands:
			reply := ipc.NewEnvelope(ipc.MsgAck, ipc.ValRequestCommands, e.ID)
			proc.ReplyCommands(reply)
			return t.Send(reply)
		case ipc.ValShutdown:
			return cos.ErrShutdown
		}
		return nil
	}
}

func sendAck(t *ipc.Transport, in *ipc.Envelope, val ipc.MsgVal) error {
	return t.Send(ipc.NewEnvelope(ipc.MsgAck, val, in.ID))
}

func sendNack(t *ipc.Transport, in *ipc.Envelope, cause error) error {
	reply := ipc.NewEnvelope(ipc.MsgNack, in.Val, in.ID)
	ipc.SetParam(reply, "error", cause.Error())
	return t.Send(reply)
}

// pluginFactory maps a library identifier to a concrete, compile-time
// registered plugin constructor (spec.md Redesign Flags: dynamic dlopen
// loading replaced by a link-time registry).
func pluginFactory(chain *plugin.Chain, inboxDepth *stats.PluginInboxDepth) controller.PluginFactory {
	return func(library string) (plugin.Plugin, error) {
		var p plugin.Plugin
		switch library {
		case "offsetadjust":
			p = offsetadjust.New(library)
		case "paramadjust":
			p = paramadjust.New(library)
		case "lz4compress":
			p = lz4compress.New(library)
		case "metapublish":
			p = metapublish.New(library, chain.Publisher(library))
		case "dummy":
			p = dummy.New(library)
		default:
			return nil, fmt.Errorf("unknown plugin library %q", library)
		}
		inboxDepth.Register(library, func() int { return chain.InboxDepth(library) })
		return p, nil
	}
}

func installSignalHandler(shutdown func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		shutdown()
	}()
}
