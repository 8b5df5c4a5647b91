// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CausalityGraph/services/projector/event"
	"github.com/AleutianAI/CausalityGraph/services/projector/graph"
)

// fakeRelay upgrades one connection, waits for the REQ frame, then plays
// the configured frames and holds the connection open.
type fakeRelay struct {
	t      *testing.T
	frames []string

	mu   sync.Mutex
	subs []string
}

func (r *fakeRelay) handler() http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub []json.RawMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		r.mu.Lock()
		r.subs = append(r.subs, string(sub[0]))
		r.mu.Unlock()

		for _, frame := range r.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}

		// Hold open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

// recordingApplier records applied event ids and fails per script.
type recordingApplier struct {
	mu       sync.Mutex
	applied  []string
	failures map[string][]error // errors to return before succeeding
	done     chan struct{}      // closed when want events have arrived
	want     int
}

func newRecordingApplier(want int) *recordingApplier {
	return &recordingApplier{
		failures: make(map[string][]error),
		done:     make(chan struct{}),
		want:     want,
	}
}

func (a *recordingApplier) Apply(_ context.Context, e *event.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if errs := a.failures[e.ID]; len(errs) > 0 {
		err := errs[0]
		a.failures[e.ID] = errs[1:]
		return err
	}

	a.applied = append(a.applied, e.ID)
	if len(a.applied) == a.want {
		close(a.done)
	}
	return nil
}

func (a *recordingApplier) appliedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.applied...)
}

func eventFrame(id string, kind int) string {
	return fmt.Sprintf(`["EVENT","sub1",{"id":%q,"pubkey":"aa","created_at":1,"kind":%d,"tags":[],"content":"","sig":""}]`, id, kind)
}

func runFeed(t *testing.T, relay *fakeRelay, applier Applier, wait <-chan struct{}) {
	t.Helper()

	srv := httptest.NewServer(relay.handler())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	feed, err := NewFeed(Config{
		URL:          wsURL,
		RetryBackoff: 5 * time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, applier)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = feed.Run(ctx)
		close(runDone)
	}()

	select {
	case <-wait:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for events")
	}
	cancel()

	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop after cancel")
	}
}

func TestFeed_AppliesEventsInOrder(t *testing.T) {
	relay := &fakeRelay{t: t, frames: []string{
		eventFrame("ev1", 1),
		eventFrame("ev2", 0),
		eventFrame("ev3", 3),
	}}
	applier := newRecordingApplier(3)

	runFeed(t, relay, applier, applier.done)

	assert.Equal(t, []string{"ev1", "ev2", "ev3"}, applier.appliedIDs())
}

func TestFeed_SkipsNonEventFrames(t *testing.T) {
	relay := &fakeRelay{t: t, frames: []string{
		`["EOSE","sub1"]`,
		`["NOTICE","slow down"]`,
		`not json at all`,
		eventFrame("ev1", 1),
	}}
	applier := newRecordingApplier(1)

	runFeed(t, relay, applier, applier.done)

	assert.Equal(t, []string{"ev1"}, applier.appliedIDs())
}

func TestFeed_PermanentFailureDropsEvent(t *testing.T) {
	relay := &fakeRelay{t: t, frames: []string{
		eventFrame("bad", 1),
		eventFrame("good", 1),
	}}
	applier := newRecordingApplier(1)
	applier.failures["bad"] = []error{graph.ErrMalformedEvent}

	runFeed(t, relay, applier, applier.done)

	assert.Equal(t, []string{"good"}, applier.appliedIDs())
}

func TestFeed_SkipSignalsMoveOn(t *testing.T) {
	relay := &fakeRelay{t: t, frames: []string{
		eventFrame("dup", 1),
		eventFrame("odd", 7),
		eventFrame("good", 1),
	}}
	applier := newRecordingApplier(1)
	applier.failures["dup"] = []error{graph.ErrDuplicateEvent}
	applier.failures["odd"] = []error{graph.ErrUnhandledKind}

	runFeed(t, relay, applier, applier.done)

	// Neither skip signal is retried, so only "good" ever lands.
	assert.Equal(t, []string{"good"}, applier.appliedIDs())
}

func TestFeed_TransientFailureRetriesSameEvent(t *testing.T) {
	relay := &fakeRelay{t: t, frames: []string{
		eventFrame("ev1", 1),
		eventFrame("ev2", 1),
	}}
	applier := newRecordingApplier(2)
	applier.failures["ev1"] = []error{
		graph.ErrStoreUnavailable,
		graph.ErrStoreUnavailable,
	}

	runFeed(t, relay, applier, applier.done)

	// ev1 eventually lands, and still before ev2.
	assert.Equal(t, []string{"ev1", "ev2"}, applier.appliedIDs())
}

func TestFeed_SendsSubscriptionRequest(t *testing.T) {
	relay := &fakeRelay{t: t, frames: []string{eventFrame("ev1", 1)}}
	applier := newRecordingApplier(1)

	runFeed(t, relay, applier, applier.done)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	require.NotEmpty(t, relay.subs)
	assert.Equal(t, `"REQ"`, relay.subs[0])
}

// blockingApplier blocks inside Apply until released, then reports the
// state of the context it was handed.
type blockingApplier struct {
	entered chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (a *blockingApplier) Apply(ctx context.Context, _ *event.Event) error {
	close(a.entered)
	<-a.release
	a.ctxErr <- ctx.Err()
	return nil
}

func TestFeed_ShutdownDoesNotCancelInFlightEvent(t *testing.T) {
	relay := &fakeRelay{t: t, frames: []string{eventFrame("ev1", 1)}}
	srv := httptest.NewServer(relay.handler())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	applier := &blockingApplier{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
	feed, err := NewFeed(Config{
		URL:    wsURL,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, applier)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = feed.Run(ctx)
		close(runDone)
	}()

	select {
	case <-applier.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the event to reach the applier")
	}

	cancel()
	close(applier.release)

	select {
	case err := <-applier.ctxErr:
		assert.NoError(t, err, "in-flight projection saw a cancelled context")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the applier to finish")
	}

	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop after cancel")
	}
}

func TestNewFeed_Validation(t *testing.T) {
	_, err := NewFeed(Config{}, newRecordingApplier(0))
	assert.Error(t, err)

	_, err = NewFeed(Config{URL: "ws://x"}, nil)
	assert.Error(t, err)
}
