package agent

import "testing"

func TestMemoryRecordEvictsOldestBeyondCapacity(t *testing.T) {
	m := NewMemory(3)
	for i := 0; i < 5; i++ {
		m.Record(MemoryEntry{Tick: uint64(i), Decision: ActionGo})
	}
	recent := m.RecentActions(10)
	if len(recent) != 3 {
		t.Fatalf("expected ring capped at 3 entries, got %d", len(recent))
	}
}

func TestMemoryCapacityClampsToDefault(t *testing.T) {
	m := NewMemory(1000)
	if m.capacity != DefaultMemoryCapacity {
		t.Fatalf("expected capacity clamped to %d, got %d", DefaultMemoryCapacity, m.capacity)
	}
}

func TestMemoryRecentActionsPreservesOrder(t *testing.T) {
	m := NewMemory(10)
	sequence := []Action{ActionGo, ActionStop, ActionGo, ActionStop}
	for i, a := range sequence {
		m.Record(MemoryEntry{Tick: uint64(i), Decision: a})
	}
	got := m.RecentActions(4)
	for i, a := range sequence {
		if got[i] != a {
			t.Fatalf("expected action order preserved, got %v want %v", got, sequence)
		}
	}
}

func TestMemoryNearMissCount(t *testing.T) {
	m := NewMemory(10)
	m.RecordNearMiss(NearMiss{Tick: 1, PeerID: "b", TTC: 2.5})
	m.RecordNearMiss(NearMiss{Tick: 2, PeerID: "c", TTC: 2.0})
	if m.NearMissCount() != 2 {
		t.Fatalf("expected 2 near misses, got %d", m.NearMissCount())
	}
}

func TestMemoryNearMissesWithPeerCountsOnlyThatPeer(t *testing.T) {
	m := NewMemory(10)
	m.RecordNearMiss(NearMiss{Tick: 1, PeerID: "a", TTC: 2.0})
	m.RecordNearMiss(NearMiss{Tick: 2, PeerID: "b", TTC: 2.0})
	m.RecordNearMiss(NearMiss{Tick: 3, PeerID: "a", TTC: 1.5})
	if got := m.NearMissesWithPeer("a"); got != 2 {
		t.Fatalf("expected 2 near misses with peer 'a', got %d", got)
	}
	if got := m.NearMissesWithPeer("b"); got != 1 {
		t.Fatalf("expected 1 near miss with peer 'b', got %d", got)
	}
}

func TestMemoryNearMissesReturnsLocation(t *testing.T) {
	m := NewMemory(10)
	m.RecordNearMiss(NearMiss{Tick: 1, PeerID: "a", TTC: 2.0, X: 5, Y: 6})
	got := m.NearMisses()
	if len(got) != 1 || got[0].X != 5 || got[0].Y != 6 {
		t.Fatalf("expected recorded location (5,6), got %+v", got)
	}
}

func TestMemoryDigestIncludesLessons(t *testing.T) {
	m := NewMemory(10)
	m.Record(MemoryEntry{Tick: 1, Decision: ActionGo, Reason: "clear"})
	m.AddLesson("peer at north approach tends to run yellow")
	digest := m.Digest(5)
	found := false
	for _, line := range digest {
		if line == "lesson: peer at north approach tends to run yellow" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected lesson present in digest, got %v", digest)
	}
}
