/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package rx_test

import (
	"encoding/binary"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/odin-detector/odin-data-sub001/decoder"
	"github.com/odin-detector/odin-data-sub001/rx"
	"github.com/odin-detector/odin-data-sub001/shmem"
)

func encodeHeader(frameNumber, packetIndex uint32, sof, eof bool) []byte {
	var flags uint32
	if sof {
		flags |= 1 << 31
	}
	if eof {
		flags |= 1 << 30
	}
	flags |= packetIndex
	b := make([]byte, decoder.PacketHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], frameNumber)
	binary.LittleEndian.PutUint32(b[4:8], flags)
	return b
}

// TestStandaloneReceivesAndCompletesFrame drives RxService with no control
// endpoint (unit-test mode: it owns every slot from the start, per New's
// standalone seeding) and sends a real 2-packet frame over UDP to its
// ephemeral-port socket, then stops it via Stop().
func TestStandaloneReceivesAndCompletesFrame(t *testing.T) {
	mgr, err := shmem.Create(fmt.Sprintf("odin-rx-test-%d", 1), 4, 4096)
	if err != nil {
		t.Fatalf("shmem.Create: %v", err)
	}
	defer mgr.Close(true)

	svc := rx.New(rx.Config{
		Ports:   []int{0},
		Decoder: decoder.Config{PacketsPerFrame: 2, PacketSize: 16, FrameTimeoutMS: 5000},
	}, mgr)

	done := make(chan error, 1)
	go func() { done <- svc.Start() }()
	svc.WaitReady()

	addr := svc.Addrs()[0].(*net.UDPAddr)
	cli, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer cli.Close()

	for i := uint32(0); i < 2; i++ {
		pkt := append(encodeHeader(1, i, i == 0, i == 1), make([]byte, 16)...)
		if _, err := cli.Write(pkt); err != nil {
			t.Fatalf("Write packet %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && svc.Counters().PacketsReceived.Load() < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := svc.Counters().PacketsReceived.Load(); got != 2 {
		t.Fatalf("packets_received=%d, want 2", got)
	}

	svc.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RxService did not shut down within 2s of Stop()")
	}
	svc.Close()
}

func TestBindSocketRejectsInvalidPort(t *testing.T) {
	mgr, err := shmem.Create(fmt.Sprintf("odin-rx-test-%d", 2), 2, 4096)
	if err != nil {
		t.Fatalf("shmem.Create: %v", err)
	}
	defer mgr.Close(true)

	svc := rx.New(rx.Config{
		Ports:   []int{-1},
		Decoder: decoder.Config{PacketsPerFrame: 1, PacketSize: 64, FrameTimeoutMS: 1000},
	}, mgr)
	if err := svc.Start(); err == nil {
		t.Fatal("expected a bind failure for an invalid port")
	}
}
