package agent

import (
	"fmt"
	"sync"

	"intersection-sim/server/internal/v2x"
)

// DefaultMemoryCapacity is the ring buffer size the data model caps memory
// at; NewMemory clamps to this regardless of the requested capacity.
const DefaultMemoryCapacity = 20

// MemoryEntry records one tick's decision for later digesting into the
// advisor context and the adaptive rule's oscillation check.
type MemoryEntry struct {
	Tick     uint64
	Context  string
	Decision Action
	Reason   string
	Outcome  string
}

// NearMiss records a close call surfaced by the collision detector that
// involved this agent.
type NearMiss struct {
	Tick   uint64
	PeerID v2x.AgentId
	TTC    float64
	X      float64
	Y      float64
}

// Memory is one vehicle agent's bounded history: a ring of recent
// decisions, its near-miss log, and a small set of heuristically derived
// lessons. Created on spawn, discarded on despawn.
type Memory struct {
	mu sync.Mutex

	capacity int
	entries  []MemoryEntry

	nearMisses []NearMiss
	lessons    map[string]struct{}
}

// NewMemory constructs an empty memory with the given ring capacity,
// clamped to DefaultMemoryCapacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 || capacity > DefaultMemoryCapacity {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity, lessons: make(map[string]struct{})}
}

// Record appends a decision entry, evicting the oldest once at capacity.
func (m *Memory) Record(entry MemoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	if len(m.entries) > m.capacity {
		m.entries = m.entries[len(m.entries)-m.capacity:]
	}
}

// RecordNearMiss logs a close call. Unlike the decision ring, the near-miss
// log is not capped: it grows for the agent's lifetime and nothing trims it.
func (m *Memory) RecordNearMiss(nm NearMiss) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nearMisses = append(m.nearMisses, nm)
}

// AddLesson records a heuristically derived rule, deduplicated by text.
func (m *Memory) AddLesson(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lessons[text] = struct{}{}
}

// RecentActions returns up to n of the most recently committed actions,
// oldest first, used by the oscillation damper.
func (m *Memory) RecentActions(n int) []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.entries) {
		n = len(m.entries)
	}
	out := make([]Action, n)
	start := len(m.entries) - n
	for i := 0; i < n; i++ {
		out[i] = m.entries[start+i].Decision
	}
	return out
}

// NearMissCount returns how many near-misses have been recorded.
func (m *Memory) NearMissCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nearMisses)
}

// NearMisses returns a copy of the recorded near-miss log.
func (m *Memory) NearMisses() []NearMiss {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NearMiss, len(m.nearMisses))
	copy(out, m.nearMisses)
	return out
}

// NearMissesWithPeer returns how many recorded near-misses involved peer,
// the count the decision pipeline's lesson heuristic keys off of.
func (m *Memory) NearMissesWithPeer(peer v2x.AgentId) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, nm := range m.nearMisses {
		if nm.PeerID == peer {
			count++
		}
	}
	return count
}

// Digest returns a short, human-readable summary of recent memory for the
// advisor context: the last few decisions and any lessons learned.
func (m *Memory) Digest(maxLines int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := make([]string, 0, maxLines)
	start := len(m.entries) - maxLines
	if start < 0 {
		start = 0
	}
	for _, e := range m.entries[start:] {
		lines = append(lines, fmt.Sprintf("tick %d: %s (%s)", e.Tick, e.Decision, e.Reason))
		if len(lines) >= maxLines {
			break
		}
	}
	for lesson := range m.lessons {
		if len(lines) >= maxLines {
			break
		}
		lines = append(lines, "lesson: "+lesson)
	}
	return lines
}
