/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ipc_test

import (
	"testing"
	"time"

	"github.com/odin-detector/odin-data-sub001/ipc"
)

func TestTransportRoundTrip(t *testing.T) {
	codec := ipc.NewMessageCodec(true)
	ln, err := ipc.Listen("127.0.0.1:0", codec)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan *ipc.Envelope, 1)
	go func() {
		srv, err := ln.Accept()
		if err != nil {
			return
		}
		e := <-srv.Recv()
		serverDone <- e
	}()

	cli, err := ipc.Dial(ln.Addr().String(), codec)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	out := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValStatus, 1)
	if err := cli.Send(out); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-serverDone:
		if !got.Equal(out) {
			t.Fatalf("got %+v, want %+v", got, out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}
