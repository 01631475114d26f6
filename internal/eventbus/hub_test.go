package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestHubDeliversAndDropsWhenFull(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := hub.Subscribe(ctx, 1)
	hub.Publish(LevelUp("hero-1", "mining", 2))
	hub.Publish(LevelUp("hero-1", "mining", 3))

	select {
	case evt := <-ch:
		if evt.Type != TypeLevelUp || evt.EntityID != "hero-1" || evt.Level != 2 || evt.Timestamp == 0 {
			t.Fatalf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
	if hub.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", hub.Dropped())
	}
}

func TestHubClosesOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch := hub.Subscribe(ctx, 4)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed")
	}

	// 无订阅者与 nil hub 均不阻塞
	hub.Publish(LevelUp("hero-1", "luck", 2))
	var nilHub *Hub
	nilHub.Publish(LevelUp("hero-1", "luck", 2))
}
