package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestHub_BroadcastState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	client := make(Client, 4)
	hub.Register(client)

	hub.BroadcastState("run-1", "detecting", "analyzing")

	select {
	case msg := <-client:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != EventState || ev.RunID != "run-1" || ev.From != "detecting" || ev.To != "analyzing" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	hub.Unregister(client)
	if _, ok := <-client; ok {
		t.Error("client channel not closed after unregister")
	}
}

func TestHub_ClosesClientsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := make(Client, 1)
	hub.Register(client)
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected one client, got %d", hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done
	if _, ok := <-client; ok {
		t.Error("client channel not closed on shutdown")
	}
}
