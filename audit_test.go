package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestAuditDispatcherDelivers(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16, DropIfFull: true}, sink)

	d.Emit(context.Background(), AuditEvent{EventType: "login.success", AccountID: "acct-1", Success: true})

	select {
	case event := <-sink.Events():
		if event.EventType != "login.success" || event.AccountID != "acct-1" {
			t.Fatalf("event = %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestAuditDispatcherCloseDrains(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login.failure"})
	}
	d.Close()

	lines := strings.Count(buf.String(), "\n")
	if lines != 10 {
		t.Fatalf("flushed %d events, want 10", lines)
	}
}

func TestAuditDispatcherDisabled(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, nil)
	if d != nil {
		t.Fatal("disabled config should produce no dispatcher")
	}
	// nil dispatcher must be safe to use.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher dropped count")
	}
}

func TestLoginEmitsAuditTrail(t *testing.T) {
	store := newFakeAccountStore()
	seedAccount(t, store, "acct-1", "dev@example.com", "hunter2!", RoleUser)

	sink := NewChannelSink(64)
	cfg := defaultConfig()
	cfg.Session.Secret = []byte("engine-test-secret")
	cfg.Password.Cost = 4

	engine, err := New().
		WithConfig(cfg).
		WithRedis(newTestRedis(t)).
		WithAccountStore(store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithClientIP(context.Background(), "198.51.100.7")
	if _, err := engine.Login(ctx, "dev@example.com", "wrong"); err == nil {
		t.Fatal("expected credential failure")
	}
	if _, err := engine.Login(ctx, "dev@example.com", "hunter2!"); err != nil {
		t.Fatal(err)
	}
	engine.Close()

	var types []string
	for event := range sink.Events() {
		types = append(types, event.EventType)
		if event.IP != "198.51.100.7" {
			t.Errorf("event %s missing client IP: %q", event.EventType, event.IP)
		}
		if len(types) == 2 {
			break
		}
	}
	if types[0] != "login.failure" || types[1] != "login.success" {
		t.Fatalf("event types = %v", types)
	}
}

func TestJSONWriterSinkOutput(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		EventType: "twofactor.enabled",
		AccountID: "acct-1",
		Success:   true,
	})

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["event_type"] != "twofactor.enabled" {
		t.Fatalf("decoded = %v", decoded)
	}
}
