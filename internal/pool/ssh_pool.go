// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool manages a pool of live SSH client connections keyed by
// host, following the teacher's pkg/pool HTTP-client-pool pattern.
package pool

import (
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/experimaestro/experimaestro-go/internal/xlog"
)

// pooledClient wraps an *ssh.Client with usage statistics.
type pooledClient struct {
	client   *ssh.Client
	created  time.Time
	lastUsed time.Time
	useCount int64
}

// Dialer opens a new SSH connection to host. Implementations typically
// close over *ssh.ClientConfig and the network address.
type Dialer func(host string) (*ssh.Client, error)

// SSHClientPool reuses *ssh.Client connections per host so repeated
// ProcessBuilder.Start/Connector.Lock calls against the same launcher
// don't each pay a new TCP+key-exchange handshake.
type SSHClientPool struct {
	mu      sync.Mutex
	clients map[string]*pooledClient
	dial    Dialer
	logger  xlog.Logger
}

// New creates an SSHClientPool that dials new connections with dial.
func New(dial Dialer, logger xlog.Logger) *SSHClientPool {
	if logger == nil {
		logger = xlog.NoOpLogger{}
	}
	return &SSHClientPool{
		clients: make(map[string]*pooledClient),
		dial:    dial,
		logger:  logger,
	}
}

// Get returns a live client for host, dialing a new one if needed or if
// the cached one has gone stale (a keepalive request fails).
func (p *SSHClientPool) Get(host string) (*ssh.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pc, ok := p.clients[host]; ok {
		if isAlive(pc.client) {
			pc.lastUsed = time.Now()
			pc.useCount++
			return pc.client, nil
		}
		_ = pc.client.Close()
		delete(p.clients, host)
		p.logger.Warn("dropped stale ssh connection", "host", host)
	}

	client, err := p.dial(host)
	if err != nil {
		return nil, err
	}

	p.clients[host] = &pooledClient{
		client:   client,
		created:  time.Now(),
		lastUsed: time.Now(),
		useCount: 1,
	}
	p.logger.Info("opened ssh connection", "host", host)
	return client, nil
}

func isAlive(c *ssh.Client) bool {
	_, _, err := c.SendRequest("keepalive@experimaestro", true, nil)
	return err == nil
}

// CloseIdle closes and evicts connections unused for longer than
// maxIdle.
func (p *SSHClientPool) CloseIdle(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for host, pc := range p.clients {
		if pc.lastUsed.Before(cutoff) {
			_ = pc.client.Close()
			delete(p.clients, host)
			removed++
		}
	}
	return removed
}

// Close closes every pooled connection.
func (p *SSHClientPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for host, pc := range p.clients {
		if err := pc.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, host)
	}
	return firstErr
}
