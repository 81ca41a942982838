/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ipc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
)

// Transport carries length-prefixed MessageCodec envelopes over one TCP
// connection - the "inter-thread message socket" spec.md §4.3 describes
// the Reactor as watching for readability on. One Transport models one of
// the control/notification channels between the receiver and processor
// binaries (rx's request/response channel, SharedMemoryController's ready/
// release pair, ProcessorController's ctrl_endpoint/meta_endpoint).
type Transport struct {
	conn  net.Conn
	codec *MessageCodec
	in    chan *Envelope
	once  sync.Once
}

const maxFrameBytes = 16 << 20

func newTransport(conn net.Conn, codec *MessageCodec) *Transport {
	t := &Transport{conn: conn, codec: codec, in: make(chan *Envelope, 256)}
	go t.readLoop()
	return t
}

// Dial opens a client-side Transport (the role aistore's transport bundle
// calls the "sender": here, the side issuing cmd/request envelopes).
func Dial(addr string, codec *MessageCodec) (*Transport, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", addr, err)
	}
	return newTransport(conn, codec), nil
}

// Listener accepts inbound Transport connections on one bound address -
// the receiver/processor side that owns ctrl_endpoint or meta_endpoint.
type Listener struct {
	ln    net.Listener
	codec *MessageCodec
}

func Listen(addr string, codec *MessageCodec) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln, codec: codec}, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks for the next inbound connection. The receiver/processor
// topology here is one dealer-style peer per endpoint, so callers
// typically Accept once and loop Recv on the result.
func (l *Listener) Accept() (*Transport, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newTransport(conn, l.codec), nil
}

func (l *Listener) Close() error { return l.ln.Close() }

func (t *Transport) readLoop() {
	defer close(t.in)
	r := bufio.NewReader(t.conn)
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n == 0 || n > maxFrameBytes {
			nlog.Warningf("ipc: transport %s: rejecting frame of %d bytes", t.conn.RemoteAddr(), n)
			return
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		e, err := t.codec.Decode(buf)
		if err != nil {
			nlog.Warningf("ipc: transport %s: decode error: %v", t.conn.RemoteAddr(), err)
			continue
		}
		t.in <- e
	}
}

// Recv is the channel a Reactor registers via RegisterChannel; it closes
// when the peer disconnects or a read error occurs.
func (t *Transport) Recv() <-chan *Envelope { return t.in }

// Send encodes and writes one envelope, length-prefixed.
func (t *Transport) Send(e *Envelope) error {
	raw, err := t.codec.Encode(e)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(raw)))
	if _, err := t.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = t.conn.Write(raw)
	return err
}

func (t *Transport) Close() error {
	var err error
	t.once.Do(func() { err = t.conn.Close() })
	return err
}
