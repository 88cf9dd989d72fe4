// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package pool provides connection pooling for the single upstream MongoDB
// backend address. Candidate selection across multiple backends is out of
// scope (see SPEC_FULL.md's Upstream cluster management non-goal); this pool
// only manages reuse and resilient dialing of one configured address.
package pool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrPoolClosed is returned when the pool is closed.
	ErrPoolClosed = errors.New("connection pool is closed")
	// ErrPoolExhausted is returned when no connections are available.
	ErrPoolExhausted = errors.New("connection pool exhausted")
)

// Config holds connection pool configuration.
type Config struct {
	// MaxIdle is the maximum number of idle connections in the pool.
	MaxIdle int
	// MaxActive is the maximum number of active connections.
	// If 0, there is no limit.
	MaxActive int
	// IdleTimeout is the maximum age, measured from when it was dialed, of a
	// connection sitting in the idle list; older idle connections are closed
	// by the periodic cleaner. Time spent idle is not tracked separately.
	IdleTimeout time.Duration
	// MaxConnLifetime is the maximum time a connection can be alive.
	MaxConnLifetime time.Duration
	// DialTimeout bounds a single dial attempt.
	DialTimeout time.Duration
	// WaitTimeout is the maximum time to wait for a connection when pool is exhausted.
	// If 0, returns error immediately.
	WaitTimeout time.Duration
	// MaxDialRetries bounds the exponential backoff retry loop around a dial.
	// 0 means a single attempt, no retries.
	MaxDialRetries uint64
}

// MongoConn wraps a net.Conn dialed to the upstream MongoDB backend.
type MongoConn struct {
	net.Conn
	createdAt time.Time
	pool      *Pool
}

// Close returns the connection to the pool instead of closing the socket,
// unless the pool has already been closed, the connection has expired, or
// the idle list already holds MaxIdle connections.
func (c *MongoConn) Close() error {
	return c.pool.put(c)
}

// DialFunc creates a new connection to the upstream backend.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Pool is a connection pool for the upstream MongoDB backend.
type Pool struct {
	mu       sync.Mutex
	idle     []*MongoConn
	active   int
	dialFunc DialFunc
	config   Config
	closed   bool
	waitChan chan struct{}
}

// New creates a new connection pool that dials the upstream through dialFunc.
func New(dialFunc DialFunc, config Config) *Pool {
	if config.MaxIdle <= 0 {
		config.MaxIdle = 10
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 5 * time.Minute
	}
	if config.MaxConnLifetime == 0 {
		config.MaxConnLifetime = 30 * time.Minute
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	p := &Pool{
		dialFunc: dialFunc,
		config:   config,
		waitChan: make(chan struct{}, 1),
	}

	go p.cleanIdleConnections()

	return p
}

// Get retrieves a connection from the pool or dials a new one.
func (p *Pool) Get(ctx context.Context) (*MongoConn, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	for len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]

		if p.isValid(conn) {
			p.active++
			p.mu.Unlock()
			return conn, nil
		}

		conn.Conn.Close()
	}

	if p.config.MaxActive > 0 && p.active >= p.config.MaxActive {
		p.mu.Unlock()

		if p.config.WaitTimeout > 0 {
			timer := time.NewTimer(p.config.WaitTimeout)
			defer timer.Stop()

			select {
			case <-p.waitChan:
				return p.Get(ctx)
			case <-timer.C:
				return nil, ErrPoolExhausted
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		return nil, ErrPoolExhausted
	}

	p.active++
	p.mu.Unlock()

	rawConn, err := p.dialWithBackoff(ctx)
	if err != nil {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		return nil, fmt.Errorf("dial upstream: %w", err)
	}

	conn := &MongoConn{
		Conn:      rawConn,
		createdAt: time.Now(),
		pool:      p,
	}

	return conn, nil
}

// dialWithBackoff retries dialFunc with bounded exponential backoff, each
// attempt individually bounded by DialTimeout. Replaces the single fixed-
// timeout dial attempt with resilient retry of the one configured upstream
// address.
func (p *Pool) dialWithBackoff(ctx context.Context) (net.Conn, error) {
	var conn net.Conn

	operation := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, p.config.DialTimeout)
		defer cancel()

		c, err := p.dialFunc(dialCtx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.config.MaxDialRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return conn, nil
}

// put returns a connection to the pool.
func (p *Pool) put(conn *MongoConn) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active--

	if p.closed || !p.isValid(conn) {
		return conn.Conn.Close()
	}

	if len(p.idle) >= p.config.MaxIdle {
		return conn.Conn.Close()
	}

	p.idle = append(p.idle, conn)

	select {
	case p.waitChan <- struct{}{}:
	default:
	}

	return nil
}

// isValid checks if a connection is still valid.
func (p *Pool) isValid(conn *MongoConn) bool {
	if p.config.MaxConnLifetime > 0 && time.Since(conn.createdAt) > p.config.MaxConnLifetime {
		return false
	}
	return true
}

// cleanIdleConnections periodically closes idle connections dialed more than
// IdleTimeout ago; how long a connection has been idle is not considered.
func (p *Pool) cleanIdleConnections() {
	ticker := time.NewTicker(p.config.IdleTimeout / 2)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}

		var kept []*MongoConn
		now := time.Now()

		for _, conn := range p.idle {
			if p.config.IdleTimeout > 0 && now.Sub(conn.createdAt) > p.config.IdleTimeout {
				conn.Conn.Close()
			} else {
				kept = append(kept, conn)
			}
		}

		p.idle = kept
		p.mu.Unlock()
	}
}

// Close closes the pool and all idle connections.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	for _, conn := range p.idle {
		conn.Conn.Close()
	}
	p.idle = nil

	return nil
}

// Stats returns pool statistics.
func (p *Pool) Stats() (idle, active int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), p.active
}
