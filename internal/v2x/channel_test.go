package v2x

import (
	"context"
	"testing"
	"time"
)

func newTestChannel() (*Channel, []byte) {
	key := []byte("k")
	filter := NewSecurityFilter(key, testVMax, 5*time.Second, 20, 20)
	return NewChannel(filter, 64, nil), key
}

func TestSnapshotDeterministicRegardlessOfPublishOrder(t *testing.T) {
	key := []byte("k")
	ctx := context.Background()

	build := func(order []string) Snapshot {
		filter := NewSecurityFilter(key, testVMax, 5*time.Second, 20, 20)
		ch := NewChannel(filter, 64, nil)
		msgs := map[string]Message{
			"a": signedMessage(key, "a", 5, 0, fixedTime(1)),
			"b": signedMessage(key, "b", 6, 10, fixedTime(1)),
			"c": signedMessage(key, "c", 7, 20, fixedTime(1)),
		}
		for _, id := range order {
			if err := ch.Publish(ctx, msgs[id], fixedTime(1)); err != nil {
				t.Fatalf("publish %s: %v", id, err)
			}
		}
		return ch.Snapshot(ctx, 1, fixedTime(1), 5*time.Second)
	}

	snap1 := build([]string{"a", "b", "c"})
	snap2 := build([]string{"c", "b", "a"})

	if snap1.Len() != snap2.Len() {
		t.Fatalf("expected equal snapshot sizes, got %d and %d", snap1.Len(), snap2.Len())
	}
	for id, msg := range snap1.Messages {
		other, ok := snap2.Get(id)
		if !ok || other.V != msg.V || other.Heading != msg.Heading {
			t.Fatalf("snapshot mismatch for %s", id)
		}
	}
}

func TestPublishLaterMessageReplacesEarlier(t *testing.T) {
	ch, key := newTestChannel()
	ctx := context.Background()

	first := signedMessage(key, "a", 5, 0, fixedTime(1))
	second := signedMessage(key, "a", 12, 45, fixedTime(2))

	if err := ch.Publish(ctx, first, fixedTime(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ch.Publish(ctx, second, fixedTime(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := ch.Snapshot(ctx, 1, fixedTime(2), 5*time.Second)
	got, ok := snap.Get("a")
	if !ok {
		t.Fatalf("expected agent a in snapshot")
	}
	if got.V != 12 || got.Heading != 45 {
		t.Fatalf("expected latest message to win, got %+v", got)
	}
}

func TestSnapshotPrunesStaleAgents(t *testing.T) {
	ch, key := newTestChannel()
	ctx := context.Background()

	msg := signedMessage(key, "a", 5, 0, fixedTime(1))
	if err := ch.Publish(ctx, msg, fixedTime(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := ch.Snapshot(ctx, 2, fixedTime(10), 5*time.Second)
	if _, ok := snap.Get("a"); ok {
		t.Fatalf("expected stale agent to be pruned from snapshot")
	}
}

func TestHistoryReturnsMostRecentN(t *testing.T) {
	ch, key := newTestChannel()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg := signedMessage(key, AgentId(rune('a'+i)), float64(i), 0, fixedTime(float64(i)))
		if err := ch.Publish(ctx, msg, fixedTime(float64(i))); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	recent := ch.History(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(recent))
	}
	if recent[1].V != 4 {
		t.Fatalf("expected most recent entry last, got %+v", recent)
	}
}
