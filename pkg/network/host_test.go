// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/absmach/mongoproxy/pkg/buffer"
)

type passthroughFilter struct {
	dataCalls  int
	writeCalls int
}

func (p *passthroughFilter) InitializeReadFilterCallbacks(ReadFilterCallbacks) {}
func (p *passthroughFilter) OnNewConnection() FilterStatus                     { return Continue }
func (p *passthroughFilter) OnData(buf *buffer.Watermark) FilterStatus {
	p.dataCalls++
	return Continue
}
func (p *passthroughFilter) OnWrite(buf *buffer.Watermark) FilterStatus {
	p.writeCalls++
	return Continue
}
func (p *passthroughFilter) OnEvent(ConnectionEvent) {}

func TestHostForwardsBytesBothWays(t *testing.T) {
	backend, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	echoDone := make(chan struct{})
	go func() {
		defer close(echoDone)
		conn, err := backend.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n])
	}()

	filter := &passthroughFilter{}
	host := New(Config{Address: "127.0.0.1:0", TargetAddress: backend.Addr().String()}, func() ReadFilter { return filter }, nil)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host.cfg.Address = listener.Addr().String()
	listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenErr := make(chan error, 1)
	go func() { listenErr <- host.Listen(ctx) }()
	time.Sleep(20 * time.Millisecond)

	client, err := net.Dial("tcp", host.cfg.Address)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp := make([]byte, 4)
	if _, err := client.Read(resp); err != nil {
		t.Fatal(err)
	}
	if string(resp) != "ping" {
		t.Fatalf("resp = %q, want %q", resp, "ping")
	}

	cancel()
	<-echoDone
}
