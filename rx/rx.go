// Package rx implements RxService (spec.md §4.6): the receiver-side
// reactor wiring that binds UDP sockets, drives decoder.FrameDecoder, and
// talks the control/notification protocol to the processor side.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package rx

import (
	"fmt"
	"net"
	"time"

	"github.com/odin-detector/odin-data-sub001/cmn/cos"
	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
	"github.com/odin-detector/odin-data-sub001/decoder"
	"github.com/odin-detector/odin-data-sub001/ipc"
	"github.com/odin-detector/odin-data-sub001/shmem"
)

const tickInterval = 200 * time.Millisecond

// Config is the subset of startup configuration RxService needs; it is
// fixed at New and not updated while the service runs.
type Config struct {
	Ports          []int
	RecvBufferSize int
	CtrlEndpoint   string // dial address for the request/response channel
	Decoder        decoder.Config
	Name           string // dealer identity advertised in notify:identity
}

// RxService owns one reactor, N UDP sockets, and the control channel
// dialed out to the processor (spec.md §4.6 startup sequence step 1).
type RxService struct {
	cfg     Config
	reactor *ipc.Reactor
	codec   *ipc.MessageCodec
	ctrl    *ipc.Transport
	mgr     *shmem.SharedBufferManager
	empty   *decoder.EmptySlotQueue
	fd      *decoder.FrameDecoder
	sockets []*net.UDPConn
	stopped bool
	ready   chan struct{}
}

// New wires the reactor and decoder but does not yet bind sockets or dial
// the control channel; call Start for that (spec.md §4.6 steps 1-5).
func New(cfg Config, mgr *shmem.SharedBufferManager) *RxService {
	codec := ipc.NewMessageCodec(true)
	num, _ := mgr.Capacity()
	empty := decoder.NewEmptySlotQueue(0) // precharge fills this in once the peer is known, or New seeds it below
	svc := &RxService{cfg: cfg, reactor: ipc.NewReactor(), codec: codec, mgr: mgr, empty: empty, ready: make(chan struct{})}
	svc.fd = decoder.New(cfg.Decoder, mgr, empty, svc.onReady)
	if num > 0 && cfg.CtrlEndpoint == "" {
		// standalone/test mode: own every slot immediately rather than
		// waiting on a precharge handshake with no peer to answer it
		empty.PushRange(0, num)
	}
	return svc
}

// Start executes the spec.md §4.6 startup sequence and then blocks,
// running the reactor until Stop() or a fatal error.
func (s *RxService) Start() error {
	if s.cfg.CtrlEndpoint != "" {
		ctrl, err := ipc.Dial(s.cfg.CtrlEndpoint, s.codec)
		if err != nil {
			return cos.NewErrPluginFailure("rx.ctrl_dial", err) // fatal at startup per spec §7 BindFailure
		}
		s.ctrl = ctrl
		s.reactor.RegisterChannel("ctrl", ctrl.Recv(), s.onCtrlMessage)
		s.advertiseIdentity()
		if s.empty.Len() == 0 {
			s.requestPrecharge()
		}
	}

	for _, port := range s.cfg.Ports {
		conn, err := s.bindSocket(port)
		if err != nil {
			return err // fatal at startup
		}
		s.sockets = append(s.sockets, conn)
		s.registerSocket(conn)
	}

	s.reactor.RegisterTimer("tick", tickInterval, s.onTick)
	s.reactor.RegisterTimer("frame-timeout",
		time.Duration(s.cfg.Decoder.FrameTimeoutMS)*time.Millisecond, s.onTimeoutTick)

	close(s.ready)
	return s.reactor.RunUntilShutdown()
}

func (s *RxService) bindSocket(port int) (*net.UDPConn, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("rx: bind port %d: %w", port, err)
	}
	if s.cfg.RecvBufferSize > 0 {
		_ = conn.SetReadBuffer(s.cfg.RecvBufferSize)
	}
	return conn, nil
}

// registerSocket wires one UDP socket into the reactor as a channel. A
// background goroutine does the actual blocking recv (Go's net package has
// no portable non-blocking peek), parses the fixed header off the front of
// each datagram, and relays the whole packet to the reactor goroutine,
// which does the decoder's slot-selection and payload copy - keeping all
// FrameDecoder state mutation on the one reactor goroutine per spec.md
// §4.3's re-entrancy rule, even though the peek itself happens off it.
func (s *RxService) registerSocket(conn *net.UDPConn) {
	type packet struct {
		hdr     decoder.PacketHeader
		payload []byte
	}
	relay := make(chan packet, 64)
	maxDatagram := decoder.PacketHeaderSize + int(s.cfg.Decoder.PacketSize)

	go func() {
		defer close(relay)
		buf := make([]byte, maxDatagram)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if n < decoder.PacketHeaderSize {
				continue
			}
			hdr, err := decoder.ParsePacketHeader(buf[:n])
			if err != nil {
				continue
			}
			payload := make([]byte, n-decoder.PacketHeaderSize)
			copy(payload, buf[decoder.PacketHeaderSize:n])
			relay <- packet{hdr: hdr, payload: payload}
		}
	}()

	s.reactor.RegisterChannel(fmt.Sprintf("udp:%s", conn.LocalAddr()), relay, func(v any) error {
		p := v.(packet)
		s.fd.ProcessPacketHeader(p.hdr)
		dst, err := s.fd.NextPayloadBuffer(p.hdr)
		if err != nil {
			nlog.Warningf("rx: payload buffer: %v", err)
			return nil
		}
		n := copy(dst, p.payload)
		s.fd.ProcessPacket(p.hdr, n)
		return nil
	})
}

func (s *RxService) onReady(r decoder.Ready) {
	if s.ctrl == nil {
		return
	}
	e := ipc.NewEnvelope(ipc.MsgNotify, ipc.ValFrameReady, 0)
	ipc.SetParam(e, "buffer_id", uint32(r.SlotID))
	ipc.SetParam(e, "frame", r.FrameNumber)
	if err := s.ctrl.Send(e); err != nil {
		nlog.Warningf("rx: frame_ready send: %v", err)
	}
}

func (s *RxService) advertiseIdentity() {
	e := ipc.NewEnvelope(ipc.MsgNotify, ipc.ValIdentity, 0)
	ipc.SetParam(e, "name", s.cfg.Name)
	if err := s.ctrl.Send(e); err != nil {
		nlog.Warningf("rx: identity send: %v", err)
	}
}

func (s *RxService) requestPrecharge() {
	e := ipc.NewEnvelope(ipc.MsgCmd, ipc.ValBufferPrechargeRequest, 0)
	if err := s.ctrl.Send(e); err != nil {
		nlog.Warningf("rx: precharge request: %v", err)
	}
}

func (s *RxService) onCtrlMessage(v any) error {
	e := v.(*ipc.Envelope)
	if !e.Strict() {
		return nil
	}
	switch e.Val {
	case ipc.ValStatus:
		return s.replyStatus()
	case ipc.ValFrameRelease:
		if id, err := ipc.GetParam[uint32](e, "buffer_id"); err == nil {
			s.empty.Push(uint64(id))
		}
	case ipc.ValBufferPrecharge:
		start, errS := ipc.GetParam[uint32](e, "start_buffer_id")
		num, errN := ipc.GetParam[uint32](e, "num_buffers")
		if errS == nil && errN == nil {
			s.empty.PushRange(uint64(start), uint64(num))
		}
	case ipc.ValShutdown:
		return cos.ErrShutdown
	}
	return nil
}

func (s *RxService) replyStatus() error {
	c := s.fd.Counters()
	e := ipc.NewEnvelope(ipc.MsgAck, ipc.ValStatus, 0)
	ipc.SetParam(e, "empty_buffers", uint32(s.empty.Len()))
	ipc.SetParam(e, "frames_timedout", c.FramesTimedOut.Load())
	ipc.SetParam(e, "packets_received", c.PacketsReceived.Load())
	ipc.SetParam(e, "packets_lost", c.PacketsLost.Load())
	ipc.SetParam(e, "packets_dropped", c.PacketsDropped.Load())
	return s.ctrl.Send(e)
}

func (s *RxService) onTick(now int64) (time.Duration, bool) {
	if s.stopped {
		s.reactor.Stop()
		return 0, false
	}
	return tickInterval, true
}

func (s *RxService) onTimeoutTick(now int64) (time.Duration, bool) {
	s.fd.CheckTimeouts(now)
	return time.Duration(s.cfg.Decoder.FrameTimeoutMS) * time.Millisecond, true
}

// Stop requests a graceful shutdown; the running tick timer observes the
// flag and stops the reactor (spec.md §4.6 Shutdown).
func (s *RxService) Stop() { s.stopped = true }

// Counters exposes the decoder's packet/frame counters, e.g. for a
// fasthttp status endpoint or tests.
func (s *RxService) Counters() *decoder.Counters { return s.fd.Counters() }

// WaitReady blocks until every socket is bound and registered - i.e. until
// just before the reactor enters its run loop. Tests that need Addrs()
// should call this before reading it.
func (s *RxService) WaitReady() { <-s.ready }

// Addrs returns the bound local address of each UDP socket, in the order
// Start bound them - useful for tests and for logging the actual port
// when Config.Ports requests an ephemeral one (port 0).
func (s *RxService) Addrs() []net.Addr {
	addrs := make([]net.Addr, len(s.sockets))
	for i, c := range s.sockets {
		addrs[i] = c.LocalAddr()
	}
	return addrs
}

// Close releases sockets and the control transport. Call after Start
// returns.
func (s *RxService) Close() error {
	var errs cos.Errs
	for _, conn := range s.sockets {
		if err := conn.Close(); err != nil {
			errs.Add(err)
		}
	}
	if s.ctrl != nil {
		if err := s.ctrl.Close(); err != nil {
			errs.Add(err)
		}
	}
	if _, err := errs.JoinErr(); err != nil {
		return err
	}
	return nil
}
