package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, maxEvents int) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, maxEvents)
}

func TestStoreAppendAndRecent(t *testing.T) {
	store := newTestStore(t, 3)
	ctx := context.Background()

	for _, subject := range []string{"a", "b", "c", "d"} {
		if err := store.Append(ctx, Event{Kind: KindLogin, Subject: subject}); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}

	events, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected capped list of 3, got %d", len(events))
	}
	if events[0].Subject != "d" || events[2].Subject != "b" {
		t.Fatalf("unexpected order: %+v", events)
	}

	if events, _ := store.Recent(ctx, 0); events != nil {
		t.Fatalf("expected nil for n=0, got %+v", events)
	}
}

func TestHandleEventAppends(t *testing.T) {
	store := newTestStore(t, 0)
	m := &Manager{store: store, logger: log.New(&bytes.Buffer{}, "", 0), now: time.Now}

	body, _ := json.Marshal(Event{Kind: KindRedirect, Subject: "Home", Detail: "/"})
	if err := m.handleEvent(context.Background(), asynq.NewTask(taskTypeEvent, body)); err != nil {
		t.Fatalf("handleEvent returned error: %v", err)
	}

	events, err := m.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindRedirect || events[0].Detail != "/" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestHandleEventSkipsRetryOnBadPayload(t *testing.T) {
	store := newTestStore(t, 0)
	m := &Manager{store: store, logger: log.New(&bytes.Buffer{}, "", 0), now: time.Now}

	err := m.handleEvent(context.Background(), asynq.NewTask(taskTypeEvent, []byte("not-json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	body, _ := json.Marshal(Event{Subject: "x"})
	if err := m.handleEvent(context.Background(), asynq.NewTask(taskTypeEvent, body)); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for missing kind, got %v", err)
	}
}

func TestNewManagerRejectsBadURL(t *testing.T) {
	if _, err := NewManager("://bad", NewStore(nil, 0), nil); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
	if _, err := NewManager("redis://127.0.0.1:6379/0", nil, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}
