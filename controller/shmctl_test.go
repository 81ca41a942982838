/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package controller_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/odin-detector/odin-data-sub001/controller"
	"github.com/odin-detector/odin-data-sub001/frame"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/shmem"
)

func dialedPair(t *testing.T, codec *ipc.MessageCodec) (server, client *ipc.Transport) {
	t.Helper()
	ln, err := ipc.Listen("127.0.0.1:0", codec)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan *ipc.Transport, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	cli, err := ipc.Dial(ln.Addr().String(), codec)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	select {
	case srv := <-accepted:
		return srv, cli
	case <-time.After(2 * time.Second):
		t.Fatal("timed out accepting loopback connection")
	}
	return nil, nil
}

func TestSharedMemoryControllerFanOutAndRelease(t *testing.T) {
	name := fmt.Sprintf("odin-test-shmctl-%d", time.Now().UnixNano())
	mgr, err := shmem.Create(name, 2, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer mgr.Close(true)

	codec := ipc.NewMessageCodec(true)
	srv, cli := dialedPair(t, codec)
	defer srv.Close()
	defer cli.Close()

	shm := controller.NewSharedMemoryController(srv, mgr, false)

	var got []uint32
	done := make(chan struct{})
	shm.RegisterCallback("sink", func(f *frame.Frame) error {
		got = append(got, f.FrameNumber)
		close(done)
		return nil
	})

	ready := ipc.NewEnvelope(ipc.MsgNotify, ipc.ValFrameReady, 0)
	ipc.SetParam(ready, "buffer_id", uint32(1))
	ipc.SetParam(ready, "frame", uint32(42))
	if err := shm.OnMessage(ready); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never invoked")
	}
	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("got %v, want [42]", got)
	}

	select {
	case release := <-cli.Recv():
		if release.Val != ipc.ValFrameRelease {
			t.Fatalf("got val %q, want frame_release", release.Val)
		}
		bufferID, err := ipc.GetParam[uint32](release, "buffer_id")
		if err != nil || bufferID != 1 {
			t.Fatalf("release buffer_id = %v, %v; want 1", bufferID, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame_release")
	}
}

func TestSharedMemoryControllerRemoveCallback(t *testing.T) {
	name := fmt.Sprintf("odin-test-shmctl-remove-%d", time.Now().UnixNano())
	mgr, err := shmem.Create(name, 1, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer mgr.Close(true)

	codec := ipc.NewMessageCodec(true)
	srv, cli := dialedPair(t, codec)
	defer srv.Close()
	defer cli.Close()

	shm := controller.NewSharedMemoryController(srv, mgr, true)

	called := false
	shm.RegisterCallback("sink", func(f *frame.Frame) error {
		called = true
		return nil
	})
	shm.RemoveCallback("sink")

	ready := ipc.NewEnvelope(ipc.MsgNotify, ipc.ValFrameReady, 0)
	ipc.SetParam(ready, "buffer_id", uint32(0))
	ipc.SetParam(ready, "frame", uint32(1))
	if err := shm.OnMessage(ready); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}

	// copyOnRead releases synchronously regardless of any registered sink.
	select {
	case <-cli.Recv():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame_release")
	}
	if called {
		t.Fatal("removed callback was still invoked")
	}
}

func TestBufferConfigParams(t *testing.T) {
	e := ipc.NewEnvelope(ipc.MsgNotify, ipc.ValBufferConfig, 0)
	ipc.SetParam(e, "shared_buffer_name", "rx_buffer")
	ipc.SetParam(e, "num_buffers", uint32(10))
	ipc.SetParam(e, "buffer_size", uint32(4096))

	name, num, size, err := controller.BufferConfigParams(e)
	if err != nil {
		t.Fatalf("BufferConfigParams: %v", err)
	}
	if name != "rx_buffer" || num != 10 || size != 4096 {
		t.Fatalf("got (%q,%d,%d), want (rx_buffer,10,4096)", name, num, size)
	}
}
