// Package admin serves a read-only HTTP surface (/status, /metrics) on
// the processor side, mirroring the JSON status control-channel reply
// without requiring a control-channel client of one's own.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package admin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/odin-detector/odin-data-sub001/cmn/nlog"
	"github.com/odin-detector/odin-data-sub001/ipc"
)

// StatusFunc fills a fresh status reply envelope, e.g. ProcessorController.Status.
type StatusFunc func(reply *ipc.Envelope)

// Server is a small fasthttp listener; it never mutates the running
// system, only reads through StatusFunc and the given registry.
type Server struct {
	srv    *fasthttp.Server
	codec  *ipc.MessageCodec
	status StatusFunc
}

func New(reg *prometheus.Registry, status StatusFunc) *Server {
	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	metricsFast := fasthttpadaptor.NewFastHTTPHandler(metricsHandler)

	s := &Server{codec: ipc.NewMessageCodec(true), status: status}
	s.srv = &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/metrics":
				metricsFast(ctx)
			case "/status":
				s.serveStatus(ctx)
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
	}
	return s
}

func (s *Server) serveStatus(ctx *fasthttp.RequestCtx) {
	reply := ipc.NewEnvelope(ipc.MsgAck, ipc.ValStatus, 0)
	s.status(reply)
	raw, err := s.codec.Encode(reply)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

// ListenAndServe blocks serving on addr until the listener errors or is closed.
func (s *Server) ListenAndServe(addr string) error {
	nlog.Infof("admin: listening on %s", addr)
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error { return s.srv.Shutdown() }
