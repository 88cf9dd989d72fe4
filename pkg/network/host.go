// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/absmach/mongoproxy/pkg/buffer"
)

// Config holds the host's listen/dial configuration. TLS termination,
// upstream health checking, and multi-backend selection are explicitly out
// of scope; TargetAddress names a single dialed backend.
type Config struct {
	Address       string
	TargetAddress string
	Logger        *slog.Logger
	// Admit is consulted once per accepted connection, keyed by the remote
	// address, before the upstream dial happens. A nil Admit admits every
	// connection. AccessRateLimiter.Allow is the production implementation.
	Admit func(clientKey string) bool
}

// Dialer dials the single configured upstream. The default is net.Dial;
// UpstreamPool substitutes a pooled, backoff-retried dialer.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

// Host is the concrete network-filter host: it owns the listening socket,
// dials the upstream backend per accepted connection, and drives two
// watermark-buffered read loops feeding a ReadFilter's OnData/OnWrite.
type Host struct {
	cfg       Config
	newFilter func() ReadFilter
	dial      Dialer

	wg sync.WaitGroup
}

// New returns a Host that constructs a fresh filter (via newFilter) for
// every accepted connection.
func New(cfg Config, newFilter func() ReadFilter, dial Dialer) *Host {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if dial == nil {
		dial = func(_ context.Context, address string) (net.Conn, error) {
			return net.Dial("tcp", address)
		}
	}
	return &Host{cfg: cfg, newFilter: newFilter, dial: dial}
}

// Listen accepts connections until ctx is cancelled.
func (h *Host) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", h.cfg.Address)
	if err != nil {
		return fmt.Errorf("network: listen on %s: %w", h.cfg.Address, err)
	}
	h.cfg.Logger.Info("mongo proxy listening", slog.String("address", h.cfg.Address))

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					h.cfg.Logger.Error("accept failed", slog.String("error", err.Error()))
					continue
				}
			}
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				h.handleConn(ctx, conn)
			}()
		}
	}()

	<-ctx.Done()
	listener.Close()
	<-acceptDone
	h.wg.Wait()
	return nil
}

type readFilterCallbacks struct {
	id     string
	resume chan struct{}
}

func (c *readFilterCallbacks) ContinueReading() {
	select {
	case c.resume <- struct{}{}:
	default:
	}
}

func (c *readFilterCallbacks) ConnectionID() string { return c.id }

func (h *Host) handleConn(ctx context.Context, downstream net.Conn) {
	defer downstream.Close()

	connID := uuid.New().String()
	logger := h.cfg.Logger.With(slog.String("connection", connID))

	if h.cfg.Admit != nil && !h.cfg.Admit(downstream.RemoteAddr().String()) {
		logger.Warn("connection rejected by rate limiter", slog.String("remote", downstream.RemoteAddr().String()))
		return
	}

	upstream, err := h.dial(ctx, h.cfg.TargetAddress)
	if err != nil {
		logger.Error("failed to dial upstream", slog.String("error", err.Error()))
		return
	}
	defer upstream.Close()

	filter := h.newFilter()
	cb := &readFilterCallbacks{id: connID, resume: make(chan struct{}, 1)}
	filter.InitializeReadFilterCallbacks(cb)
	filter.OnEvent(Connected)
	filter.OnNewConnection()

	closeEvent := make(chan ConnectionEvent, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.pumpRequest(downstream, upstream, filter, cb, logger, closeEvent)
	}()
	go func() {
		defer wg.Done()
		h.pumpReply(upstream, downstream, filter, logger, closeEvent)
	}()
	wg.Wait()

	select {
	case ev := <-closeEvent:
		filter.OnEvent(ev)
	default:
		filter.OnEvent(LocalClose)
	}
}

// pumpRequest drives downstream -> filter.OnData -> upstream, honoring
// StopIteration by withholding the buffered bytes from upstream until the
// filter calls ContinueReading.
func (h *Host) pumpRequest(downstream, upstream net.Conn, filter ReadFilter, cb *readFilterCallbacks, logger *slog.Logger, closeEvent chan<- ConnectionEvent) {
	buf := buffer.New(nil, nil)
	scratch := make([]byte, 32*1024)

	for {
		n, err := downstream.Read(scratch)
		if n > 0 {
			buf.Add(scratch[:n])
			if filter.OnData(buf) == StopIteration {
				<-cb.resume
			}
			if buf.Len() > 0 {
				if _, werr := buf.WriteTo(upstream); werr != nil {
					logger.Debug("upstream write failed", slog.String("error", werr.Error()))
					closeEvent <- LocalClose
					return
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				closeEvent <- RemoteClose
			} else {
				closeEvent <- LocalClose
			}
			return
		}
	}
}

// pumpReply drives upstream -> filter.OnWrite -> downstream. OnWrite always
// returns Continue, so bytes are forwarded immediately.
func (h *Host) pumpReply(upstream, downstream net.Conn, filter ReadFilter, logger *slog.Logger, closeEvent chan<- ConnectionEvent) {
	buf := buffer.New(nil, nil)
	scratch := make([]byte, 32*1024)

	for {
		n, err := upstream.Read(scratch)
		if n > 0 {
			buf.Add(scratch[:n])
			filter.OnWrite(buf)
			if _, werr := buf.WriteTo(downstream); werr != nil {
				logger.Debug("downstream write failed", slog.String("error", werr.Error()))
				closeEvent <- LocalClose
				return
			}
		}
		if err != nil {
			// The backend closing its side isn't the downstream peer closing
			// the connection; the proxy itself tears down downstream.
			closeEvent <- LocalClose
			return
		}
	}
}
