package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dunamismax/pixelsuffix/internal/capability"
)

func testNotifier(url string, attempts int) *Notifier {
	n := NewNotifier(Config{
		URL:            url,
		SigningSecret:  "test-secret",
		StorageName:    "CHECKED_WEBP_FEATURES",
		Source:         SourceWorker,
		Timeout:        2 * time.Second,
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
	n.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return n
}

func TestCapabilitySettledSendsSignedEvent(t *testing.T) {
	var (
		header http.Header
		body   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := testNotifier(srv.URL, 1).CapabilitySettled(context.Background(), capability.Lossless, true); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if header.Get(HeaderEvent) != EventCapabilitySettled {
		t.Fatalf("unexpected event header %q", header.Get(HeaderEvent))
	}
	if header.Get(HeaderDelivery) != "CHECKED_WEBP_FEATURES:lossless" {
		t.Fatalf("unexpected delivery header %q", header.Get(HeaderDelivery))
	}
	if header.Get(HeaderTimestamp) != "1772600767" {
		t.Fatalf("unexpected timestamp header %q", header.Get(HeaderTimestamp))
	}
	if !Verify("test-secret", header.Get(HeaderTimestamp), body, header.Get(HeaderSignature)) {
		t.Fatalf("signature %q does not verify", header.Get(HeaderSignature))
	}
	if Verify("other-secret", header.Get(HeaderTimestamp), body, header.Get(HeaderSignature)) {
		t.Fatal("expected signature to fail under another secret")
	}

	var event CapabilitySettled
	if err := json.Unmarshal(body, &event); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := CapabilitySettled{
		Event:       EventCapabilitySettled,
		DeliveryID:  "CHECKED_WEBP_FEATURES:lossless",
		Capability:  capability.Lossless,
		Supported:   true,
		StorageName: "CHECKED_WEBP_FEATURES",
		Source:      SourceWorker,
	}
	if !event.SettledAt.Equal(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)) {
		t.Fatalf("unexpected settled_at %v", event.SettledAt)
	}
	event.SettledAt = time.Time{}
	if event != want {
		t.Fatalf("unexpected event\n got %+v\nwant %+v", event, want)
	}
}

func TestCapabilitySettledRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := testNotifier(srv.URL, 3).CapabilitySettled(context.Background(), capability.Lossy, false); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestCapabilitySettledStopsOnRejection(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := testNotifier(srv.URL, 5).CapabilitySettled(context.Background(), capability.Animation, false)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestCapabilitySettledRetriesTooManyRequests(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := testNotifier(srv.URL, 2).CapabilitySettled(context.Background(), capability.Lossy, true)
	if err == nil || errors.Is(err, ErrRejected) {
		t.Fatalf("expected retryable failure, got %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestDisabledNotifierIsNoop(t *testing.T) {
	if NewNotifier(Config{URL: " "}).Enabled() {
		t.Fatal("expected blank URL to disable the notifier")
	}
	var n *Notifier
	if err := n.CapabilitySettled(context.Background(), capability.Lossy, true); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
