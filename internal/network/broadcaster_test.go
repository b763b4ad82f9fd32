package network

import "testing"

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster[int]()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	if b.SubscriberCount() != 2 {
		t.Fatalf("Expected 2 subscribers, got %d", b.SubscriberCount())
	}

	b.Publish(42)

	if got := <-ch1; got != 42 {
		t.Errorf("ch1: expected 42, got %d", got)
	}
	if got := <-ch2; got != 42 {
		t.Errorf("ch2: expected 42, got %d", got)
	}
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewBroadcaster[string]()
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	if b.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", b.SubscriberCount())
	}

	// Channel must be closed
	if _, ok := <-ch; ok {
		t.Error("Unsubscribed channel must be closed")
	}

	// Double unsubscribe must not panic
	b.Unsubscribe(ch)
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster[int]()
	ch := b.Subscribe()

	b.Close()
	if _, ok := <-ch; ok {
		t.Error("Close must close subscriber channels")
	}

	// Subscribe after close returns a closed channel
	late := b.Subscribe()
	if _, ok := <-late; ok {
		t.Error("Subscribe after Close must return a closed channel")
	}

	// Publish after close is a no-op
	b.Publish(1)
	b.Close()
}

func TestBroadcasterSkipsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster[int]()
	ch := b.Subscribe()

	// Fill the buffer past capacity; Publish must never block
	for i := 0; i < 150; i++ {
		b.Publish(i)
	}

	// Drain: exactly the buffer size made it through
	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			if count != 100 {
				t.Errorf("Expected 100 buffered messages, got %d", count)
			}
			return
		}
	}
}
