package v2x

import (
	"context"
	"sync"
	"time"

	"intersection-sim/server/logging"
	secevents "intersection-sim/server/logging/security"
)

// Channel is the signed broadcast bus. Publish validates and stages a
// message; Snapshot captures the current per-agent state at a tick
// boundary. Within a tick, publish order does not matter — only the last
// accepted message per agent survives into the snapshot.
type Channel struct {
	mu       sync.Mutex
	filter   *SecurityFilter
	current  map[AgentId]Message
	history  []Message
	historyN int
	tick     uint64
	logger   logging.Publisher
}

// NewChannel constructs a channel guarded by the provided security filter.
// historyCapacity bounds the rolling history buffer consulted by History.
func NewChannel(filter *SecurityFilter, historyCapacity int, logger logging.Publisher) *Channel {
	if historyCapacity <= 0 {
		historyCapacity = 256
	}
	if logger == nil {
		logger = logging.NopPublisher()
	}
	return &Channel{
		filter:   filter,
		current:  make(map[AgentId]Message),
		historyN: historyCapacity,
		logger:   logger,
	}
}

// Publish validates and stages msg. On acceptance the agent's prior message
// is replaced; publish order within a tick is irrelevant since only the
// final message per agent is retained.
func (c *Channel) Publish(ctx context.Context, msg Message, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.filter.Validate(msg, now); err != nil {
		entity := logging.EntityRef{Kind: logging.EntityKindAgent, ID: string(msg.AgentID)}
		secevents.Rejected(ctx, c.logger, c.tick, entity, err.Error())
		return err
	}

	c.current[msg.AgentID] = msg
	c.history = append(c.history, msg)
	if len(c.history) > c.historyN {
		c.history = c.history[len(c.history)-c.historyN:]
	}
	return nil
}

// Snapshot captures an immutable tick-boundary view, pruning agents whose
// liveness has lapsed.
func (c *Channel) Snapshot(ctx context.Context, tick uint64, now time.Time, livenessTimeout time.Duration) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick = tick
	for _, id := range c.filter.StaleAgents(now, livenessTimeout) {
		delete(c.current, id)
		c.filter.Forget(id)
		secevents.Pruned(ctx, c.logger, tick, logging.EntityRef{Kind: logging.EntityKindAgent, ID: string(id)})
	}

	messages := make(map[AgentId]Message, len(c.current))
	for id, msg := range c.current {
		messages[id] = msg
	}
	return Snapshot{Tick: tick, Messages: messages}
}

// History returns the most recent n published messages across all agents,
// oldest first.
func (c *Channel) History(n int) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.history) {
		n = len(c.history)
	}
	start := len(c.history) - n
	out := make([]Message, n)
	copy(out, c.history[start:])
	return out
}

// Stats exposes the security filter's rejection counters.
func (c *Channel) Stats() SecurityStats {
	return c.filter.Stats()
}
