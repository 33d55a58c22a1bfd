package stream

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	evt := NewEvent("service_tags_added", map[string]string{"id": "svc-1"})
	if evt.Kind != "service_tags_added" {
		t.Fatalf("unexpected kind %s", evt.Kind)
	}
	if _, err := time.Parse(time.RFC3339Nano, evt.At); err != nil {
		t.Fatalf("expected RFC3339Nano timestamp, got %q: %v", evt.At, err)
	}
	var data map[string]string
	if err := json.Unmarshal(evt.Data, &data); err != nil || data["id"] != "svc-1" {
		t.Fatalf("unexpected data %s", evt.Data)
	}

	if empty := NewEvent("ready", nil); empty.Data != nil {
		t.Fatalf("expected nil data, got %s", empty.Data)
	}
}

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(4)

	h.Emit("values_sent", nil)
	select {
	case evt := <-sub:
		if evt.Kind != "values_sent" {
			t.Fatalf("unexpected kind %s", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}

	h.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
	// Double unsubscribe must not panic on the closed channel.
	h.Unsubscribe(sub)
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(1)
	defer h.Unsubscribe(sub)

	h.Publish(NewEvent("first", nil))
	h.Publish(NewEvent("second", nil))

	evt := <-sub
	if evt.Kind != "first" {
		t.Fatalf("expected first event, got %s", evt.Kind)
	}
	select {
	case evt := <-sub:
		t.Fatalf("expected overflow drop, got %s", evt.Kind)
	default:
	}
}

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a := h.Subscribe(1)
	b := h.Subscribe(1)
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Emit("ping", nil)
	for _, sub := range []chan Event{a, b} {
		select {
		case evt := <-sub:
			if evt.Kind != "ping" {
				t.Fatalf("unexpected kind %s", evt.Kind)
			}
		case <-time.After(time.Second):
			t.Fatal("expected fan-out delivery")
		}
	}
}

func TestHubSubscribers(t *testing.T) {
	h := NewHub()
	if got := h.Subscribers(); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
	a := h.Subscribe(1)
	b := h.Subscribe(1)
	if got := h.Subscribers(); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}
	h.Unsubscribe(a)
	h.Unsubscribe(b)
	if got := h.Subscribers(); got != 0 {
		t.Fatalf("expected 0 after unsubscribe, got %d", got)
	}
}

func TestHubDefaultBuffer(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(0)
	defer h.Unsubscribe(sub)
	if cap(sub) == 0 {
		t.Fatal("expected non-zero default buffer")
	}
}
