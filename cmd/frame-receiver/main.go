// Command frame-receiver binds UDP listener sockets, decodes detector
// packets into shared memory, and notifies a processor via the control
// channel as frames complete.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/odin-detector/odin-data-sub001/cmn"
	"github.com/odin-detector/odin-data-sub001/cmn/cos"
	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
	"github.com/odin-detector/odin-data-sub001/decoder"
	"github.com/odin-detector/odin-data-sub001/hk"
	"github.com/odin-detector/odin-data-sub001/rx"
	"github.com/odin-detector/odin-data-sub001/shmem"
)

var (
	ctrlEndpoint     string
	ports            string
	sharedBufferName string
	numBuffers       uint64
	bufferSize       uint64
	packetsPerFrame  uint
	packetSize       uint
	frameTimeoutMS   int64
	logDir           string
	debugLevel       int
)

func init() {
	flag.StringVar(&ctrlEndpoint, "ctrl", "", "control channel dial address (host:port); empty runs standalone")
	flag.StringVar(&ports, "ports", "", "comma-separated UDP listen ports")
	flag.StringVar(&sharedBufferName, "shared-buffer-name", "rx_buffer", "shared memory segment name under /dev/shm")
	flag.Uint64Var(&numBuffers, "num-buffers", 100, "number of slots to create (ignored if the segment already exists)")
	flag.Uint64Var(&bufferSize, "buffer-size", 8<<20, "bytes per slot")
	flag.UintVar(&packetsPerFrame, "packets-per-frame", 1, "expected packets per frame")
	flag.UintVar(&packetSize, "packet-size", 8192, "payload bytes per packet")
	flag.Int64Var(&frameTimeoutMS, "frame-timeout-ms", 1000, "incomplete-frame timeout")
	flag.StringVar(&logDir, "log-dir", "", "log directory; empty logs to stderr only")
	flag.IntVar(&debugLevel, "debug-level", 0, "process-wide log verbosity")
}

func main() {
	flag.Parse()
	cmn.Rom.SetDebugLevel(debugLevel)
	if logDir != "" {
		nlog.SetLogDirRole(logDir, "rx")
	}

	portList, err := parsePorts(ports)
	if err != nil {
		cos.ExitLogf("frame-receiver: %v", err)
	}

	mgr, err := openOrCreateSegment()
	if err != nil {
		cos.ExitLogf("frame-receiver: %v", err)
	}
	defer mgr.Close(false)

	go hk.DefaultHK.Run()
	hk.Reg("log-flush"+hk.NameSuffix, func(int64) time.Duration { nlog.Flush(false); return hk.DefaultIval }, hk.DefaultIval)
	defer hk.DefaultHK.Stop()

	svc := rx.New(rx.Config{
		Ports:          portList,
		CtrlEndpoint:   ctrlEndpoint,
		Name:           "frame-receiver",
		Decoder: decoder.Config{
			PacketsPerFrame: uint32(packetsPerFrame),
			PacketSize:      uint32(packetSize),
			FrameTimeoutMS:  frameTimeoutMS,
		},
	}, mgr)

	installSignalHandler(svc)

	nlog.Infof("frame-receiver: starting, ports=%v ctrl=%q", portList, ctrlEndpoint)
	if err := svc.Start(); err != nil {
		nlog.Flush(true)
		cos.ExitLogf("frame-receiver: %v", err)
	}
	_ = svc.Close()
	nlog.Flush(true)
}

func openOrCreateSegment() (*shmem.SharedBufferManager, error) {
	if mgr, err := shmem.OpenExisting(sharedBufferName); err == nil {
		return mgr, nil
	}
	return shmem.Create(sharedBufferName, numBuffers, bufferSize)
}

func parsePorts(csv string) ([]int, error) {
	if csv == "" {
		return nil, fmt.Errorf("at least one -ports value is required")
	}
	var out []int
	for _, s := range strings.Split(csv, ",") {
		p, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", s, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func installSignalHandler(svc *rx.RxService) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		svc.Stop()
	}()
}
