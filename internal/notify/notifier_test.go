package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFansOutToAllSenders(t *testing.T) {
	a := &fakeSender{name: "a"}
	b := &fakeSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, discardLogger())

	if err := n.Notify(context.Background(), EventReconciliationRequired, "title", "msg"); err != nil {
		t.Fatalf("Notify returned %v", err)
	}
	if len(a.titles) != 1 || len(b.titles) != 1 {
		t.Errorf("deliveries: a=%d b=%d, want 1 each", len(a.titles), len(b.titles))
	}
}

func TestNotifyFiltersEvents(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{EventReconciliationRequired}, discardLogger())

	if err := n.Notify(context.Background(), EventOrderSettled, "title", "msg"); err != nil {
		t.Fatalf("filtered event returned %v", err)
	}
	if len(s.titles) != 0 {
		t.Errorf("filtered event reached sender %d times", len(s.titles))
	}

	if err := n.Notify(context.Background(), EventReconciliationRequired, "title", "msg"); err != nil {
		t.Fatalf("allowed event returned %v", err)
	}
	if len(s.titles) != 1 {
		t.Errorf("allowed event delivered %d times, want 1", len(s.titles))
	}
}

func TestNotifyOneFailureDoesNotBlockOthers(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("webhook down")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventVenueCancelFailed, "title", "msg")
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error %q should name the failing sender", err)
	}
	if len(good.titles) != 1 {
		t.Errorf("healthy sender delivered %d times, want 1", len(good.titles))
	}
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	if err := n.Notify(context.Background(), EventOrderSettled, "t", "m"); err != nil {
		t.Fatalf("Notify with no senders returned %v", err)
	}
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("body decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "Balance mismatch", "order o1"); err != nil {
		t.Fatalf("Send returned %v", err)
	}
	if !strings.Contains(got["content"], "**Balance mismatch**") {
		t.Errorf("content = %q, want bold title", got["content"])
	}
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want status 429 in error", err)
	}
}
