// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package notify_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/experimaestro/experimaestro-go/internal/notify"
)

type recordingServer struct {
	mu  sync.Mutex
	got []string
}

func (s *recordingServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.got = append(s.got, r.URL.Query().Get("progress"))
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *recordingServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.got))
	copy(out, s.got)
	return out
}

func TestNotifier_TransmitsOnLargeChange(t *testing.T) {
	srv := &recordingServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	n := notify.New(ts.URL+"/job-1", nil)
	defer n.Stop()

	n.Update(0.5)
	require.Eventually(t, func() bool { return len(srv.received()) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "0.500000", srv.received()[0])
}

func TestNotifier_SuppressesTinyChanges(t *testing.T) {
	srv := &recordingServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	n := notify.New(ts.URL+"/job-1", nil)
	defer n.Stop()

	n.Update(0.10)
	require.Eventually(t, func() bool { return len(srv.received()) >= 1 }, time.Second, 5*time.Millisecond)

	// A change smaller than 1% of full scale must not trigger an
	// early transmission; only the first (unconditional) send and,
	// eventually, the 5s timeout would add another entry.
	n.Update(0.105)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, srv.received(), 1)
}

func TestNotifier_ClampsOutOfRangeValues(t *testing.T) {
	srv := &recordingServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	n := notify.New(ts.URL+"/job-1", nil)
	defer n.Stop()

	n.Update(5.0)
	require.Eventually(t, func() bool { return len(srv.received()) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "1.000000", srv.received()[0])
}

func TestNotifier_EmptyURLNeverTransmits(t *testing.T) {
	n := notify.New("", nil)
	n.Update(0.5)
	n.Stop() // must return promptly: no background goroutine was started
}

func TestNotifier_SwallowsTransportErrors(t *testing.T) {
	// Nothing is listening on this URL's port, so every request fails
	// to connect; the notifier must not panic or block forever.
	u := &url.URL{Scheme: "http", Host: "127.0.0.1:1", Path: "/job-1"}
	n := notify.New(u.String(), nil)
	n.Update(0.5)
	time.Sleep(50 * time.Millisecond)
	n.Stop()
}
