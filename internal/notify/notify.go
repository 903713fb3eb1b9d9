// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify implements the task-local progress notifier of
// spec.md section 4.10: a dedicated thread that wakes on a value
// change or a 5 s timeout and, when enough has changed (or enough
// time has passed), reports the task's progress fraction to the
// launcher-supplied notification URL.
//
// This is consumed from inside a running task's own process -- the
// script built by internal/script exports XPM_NOTIFICATION_URL
// (section 4.5's step 7) for exactly this purpose -- not from the
// workspace process itself.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/experimaestro/experimaestro-go/internal/xlog"
)

const (
	envNotificationURL = "XPM_NOTIFICATION_URL"

	tickInterval    = 5 * time.Second
	minDelta        = 0.01 // 1% of full scale triggers an early transmission
	logDelta        = 0.05 // 5% of full scale triggers a log line
	connectTimeout  = 1 * time.Second
)

// Notifier reports progress fractions to a single notification URL,
// throttled per spec.md section 4.10. The zero value is not usable;
// construct with New.
type Notifier struct {
	url    string
	client *http.Client
	logger xlog.Logger

	mu      sync.Mutex
	current float64

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New starts a Notifier posting to url. If url is empty, the returned
// Notifier is inert: Update records the value but nothing is ever
// transmitted, matching "when XPM_NOTIFICATION_URL is set" -- an
// unset URL means no notifier thread at all.
func New(url string, logger xlog.Logger) *Notifier {
	if logger == nil {
		logger = xlog.New(nil)
	}
	n := &Notifier{
		url:    url,
		logger: logger,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if url == "" {
		close(n.done)
		return n
	}
	go n.run()
	return n
}

// NewFromEnv constructs a Notifier from XPM_NOTIFICATION_URL, as
// exported into a job's script environment (spec.md section 6).
func NewFromEnv(logger xlog.Logger) *Notifier {
	return New(os.Getenv(envNotificationURL), logger)
}

// Update records the task's progress, clamped to [0, 1], and wakes
// the notifier thread so it can decide whether to transmit early.
func (n *Notifier) Update(p float64) {
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}

	n.mu.Lock()
	n.current = p
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Stop ends the notifier thread. Safe to call more than once, and
// safe to call on a Notifier constructed with an empty URL.
func (n *Notifier) Stop() {
	select {
	case <-n.stop:
	default:
		close(n.stop)
	}
	<-n.done
}

func (n *Notifier) run() {
	defer close(n.done)

	var lastSent float64
	lastSentAt := time.Time{}
	sentOnce := false

	for {
		select {
		case <-n.stop:
			return
		case <-n.wake:
		case <-time.After(tickInterval):
		}

		n.mu.Lock()
		p := n.current
		n.mu.Unlock()

		elapsed := !sentOnce || time.Since(lastSentAt) >= tickInterval
		changed := !sentOnce || absDiff(p, lastSent) > minDelta
		if !elapsed && !changed {
			continue
		}

		if sentOnce && absDiff(p, lastSent) >= logDelta {
			n.logger.Info("task progress", "progress", p)
		}

		if err := n.transmit(p); err != nil {
			n.logger.Warn("progress notification failed", "url", n.url, "error", err)
			continue
		}

		lastSent = p
		lastSentAt = time.Now()
		sentOnce = true
	}
}

func (n *Notifier) transmit(p float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.url, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	q.Set("progress", fmt.Sprintf("%.6f", p))
	req.URL.RawQuery = q.Encode()

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
