package sim

import (
	"context"
	"math"
	"runtime"
	"sync"
	"time"

	"intersection-sim/server/internal/agent"
	"intersection-sim/server/internal/background"
	"intersection-sim/server/internal/collision"
	"intersection-sim/server/internal/coordinator"
	"intersection-sim/server/internal/priority"
	"intersection-sim/server/internal/trafficlight"
	"intersection-sim/server/internal/v2x"
	"intersection-sim/server/logging"
	agentlog "intersection-sim/server/logging/agentlog"
)

// Advance runs one full tick: collect broadcasts, advance lights and
// coordinators, detect collisions, evaluate priority, run every agent's
// decision in parallel over the frozen snapshot, apply the results,
// maintain background population, and return the resulting exported
// state. It is a no-op (besides returning the current export) when the
// manager is not running, matching stop()'s "freeze in place" contract.
func (m *Manager) Advance(ctx context.Context, now time.Time) ExportedState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return m.exportLocked()
	}

	dt := m.nextDT(now)
	m.tick++
	m.elapsed += dt

	m.assignIntersections()
	m.publishBroadcasts(ctx, now)
	snapshot := m.channel.Snapshot(ctx, m.tick, now, m.cfg.LivenessTimeout)

	m.advanceLightsAndCoordinator(ctx, now, dt, snapshot)

	pairs := m.detector.Detect(ctx, m.tick, snapshot)
	m.lastPairs = pairs
	result := m.arbiter.Evaluate(ctx, m.tick, snapshot, m.zones)
	m.trackPreemptions(snapshot, result)
	m.updateStats(pairs)

	decisions := m.runDecisions(ctx, m.tick, now, snapshot, pairs, result)
	m.applyDecisions(ctx, m.tick, dt, decisions)

	m.updateBackgroundLifecycle(ctx)

	return m.exportLocked()
}

// nextDT computes the wall-clock step since the previous tick, clamped to
// MaxDT, mirroring the catch-up rule: a stall never produces a single
// oversized kinematics step.
func (m *Manager) nextDT(now time.Time) float64 {
	nominal := m.cfg.NominalDT()
	if m.lastTickAt.IsZero() {
		m.lastTickAt = now
		return nominal
	}
	dt := now.Sub(m.lastTickAt).Seconds()
	m.lastTickAt = now
	if dt <= 0 {
		return nominal
	}
	if max := m.cfg.MaxDT(); dt > max {
		return max
	}
	return dt
}

// assignIntersections recomputes each vehicle's nearest intersection from
// its current position, used by every phase below that needs per-zone
// grouping (approach lists, emergency signals, hard overrides).
func (m *Manager) assignIntersections() {
	for _, id := range m.order {
		vs := m.vehicles[id]
		vs.intersectionID = m.nearestIntersectionID(vs.x, vs.y)
	}
}

func (m *Manager) nearestIntersectionID(x, y float64) string {
	best := ""
	bestDist := math.Inf(1)
	for id, iz := range m.intersections {
		d := dist(x, y, iz.CenterX, iz.CenterY)
		if d < bestDist {
			bestDist = d
			best = id
		}
	}
	return best
}

func dist(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return math.Sqrt(dx*dx + dy*dy)
}

// publishBroadcasts signs and publishes each live vehicle's current state
// as a V2X message. Messages self-report the vehicle's own previous-tick
// decision and risk level, which peers consume without recomputing it.
func (m *Manager) publishBroadcasts(ctx context.Context, now time.Time) {
	for _, id := range m.order {
		vs := m.vehicles[id]
		msg := v2x.Message{
			AgentID:     vs.id,
			X:           vs.x,
			Y:           vs.y,
			V:           vs.v,
			Heading:     vs.heading,
			Intent:      vs.intent,
			Decision:    string(vs.lastDecision.Action),
			RiskLevel:   vs.lastRisk,
			IsEmergency: vs.flags.IsEmergency,
			Timestamp:   now,
		}
		msg.MAC = v2x.Sign(msg, m.key)
		_ = m.channel.Publish(ctx, msg, now)
	}
}

func greenFromPhase(phase trafficlight.Phase) (trafficlight.Direction, bool) {
	switch phase {
	case trafficlight.PhaseNSGreen:
		return trafficlight.DirectionNS, true
	case trafficlight.PhaseEWGreen:
		return trafficlight.DirectionEW, true
	default:
		return "", false
	}
}

// advanceLightsAndCoordinator steps each intersection's traffic light (if
// any) and its arrival queue/occupancy admission for this tick.
func (m *Manager) advanceLightsAndCoordinator(ctx context.Context, now time.Time, dt float64, snapshot v2x.Snapshot) {
	for id, iz := range m.intersections {
		var green trafficlight.Direction
		var lightGreen bool

		if light, ok := m.lights[id]; ok {
			present, direction, cleared := m.emergencySignalFor(id, iz)
			light.Advance(ctx, m.tick, dt, trafficlight.EmergencySignal{Present: present, Direction: direction, Cleared: cleared})
			green, lightGreen = greenFromPhase(light.State().Phase)
		}

		approaches := m.approachesFor(id, snapshot)
		m.coordDecisions[id] = iz.Advance(ctx, m.tick, approaches, green, lightGreen)
	}

	for _, id := range m.order {
		vs := m.vehicles[id]
		decision := m.coordDecisions[vs.intersectionID]
		vs.insideIntersection = decision.IsOccupying(vs.id)
	}
}

// emergencySignalFor reports whether an emergency vehicle assigned to iz
// is close enough to warrant a preemption override, which axis it
// approaches on, and whether the previously preempting vehicle (if any)
// has cleared the intersection's core.
func (m *Manager) emergencySignalFor(id string, iz *coordinator.Intersection) (present bool, direction trafficlight.Direction, cleared bool) {
	cleared = true
	for _, vid := range m.order {
		vs := m.vehicles[vid]
		if !vs.flags.IsEmergency || vs.intersectionID != id {
			continue
		}
		d := dist(vs.x, vs.y, iz.CenterX, iz.CenterY)
		if d <= m.cfg.EmergencyPreemptRadius {
			present = true
			direction = trafficlight.DirectionForHeading(vs.heading)
		}
		if d <= m.cfg.CenterBoxHalf*3 {
			cleared = false
		}
	}
	return present, direction, cleared
}

func (m *Manager) approachesFor(id string, snapshot v2x.Snapshot) []coordinator.Approach {
	approaches := make([]coordinator.Approach, 0)
	for _, vid := range m.order {
		vs := m.vehicles[vid]
		if vs.intersectionID != id {
			continue
		}
		msg, ok := snapshot.Get(vid)
		if !ok {
			continue
		}
		approaches = append(approaches, coordinator.Approach{ID: vid, X: msg.X, Y: msg.Y, Heading: msg.Heading, Intent: vs.intent})
	}
	return approaches
}

// trackPreemptions counts a "successful preemption" once per emergency
// vehicle each time it transitions from not-currently-holding the
// right-of-way against at least one peer to holding it.
func (m *Manager) trackPreemptions(snapshot v2x.Snapshot, result priority.Result) {
	current := make(map[v2x.AgentId]bool)
	for _, zone := range m.zones {
		var emergencyID v2x.AgentId
		hasEmergency := false
		anyYield := false
		snapshot.Each(func(id v2x.AgentId, msg v2x.Message) {
			if dist(msg.X, msg.Y, zone.CenterX, zone.CenterY) > m.cfg.EmergencyPreemptRadius {
				return
			}
			if msg.IsEmergency {
				hasEmergency = true
				emergencyID = id
				return
			}
			if result.Get(id) == priority.MustYield {
				anyYield = true
			}
		})
		if hasEmergency && anyYield {
			current[emergencyID] = true
		}
	}
	for id := range current {
		if !m.activePreemptions[id] {
			m.successfulPreemptions++
		}
	}
	m.activePreemptions = current
}

func riskRank(r collision.RiskLevel) int {
	switch r {
	case collision.RiskCollision:
		return 3
	case collision.RiskHigh:
		return 2
	case collision.RiskMedium:
		return 1
	default:
		return 0
	}
}

// updateStats recomputes every vehicle's current worst risk level from
// this tick's collision pairs and tallies the collisions-prevented
// counter the first time a pair reaches collision-level risk.
func (m *Manager) updateStats(pairs []collision.Pair) {
	for _, id := range m.order {
		m.vehicles[id].lastRisk = collision.RiskLow
	}
	for _, p := range pairs {
		if p.Risk == collision.RiskCollision {
			key := [2]v2x.AgentId{p.A, p.B}
			if _, seen := m.preventedSeen[key]; !seen {
				m.preventedSeen[key] = struct{}{}
				m.collisionsPrevented++
			}
		}
		if vs, ok := m.vehicles[p.A]; ok && riskRank(p.Risk) > riskRank(vs.lastRisk) {
			vs.lastRisk = p.Risk
		}
		if vs, ok := m.vehicles[p.B]; ok && riskRank(p.Risk) > riskRank(vs.lastRisk) {
			vs.lastRisk = p.Risk
		}
	}
}

// runDecisions fans each live vehicle's Decide call out across a worker
// pool sized min(runtime.NumCPU(), agent count) (or the configured
// override), mirroring the tick scheduler's fixed, bounded-concurrency
// agent-decision phase.
func (m *Manager) runDecisions(ctx context.Context, tick uint64, now time.Time, snapshot v2x.Snapshot, pairs []collision.Pair, result priority.Result) map[v2x.AgentId]agent.Decision {
	type job struct {
		vs *vehicleState
		in agent.Inputs
	}

	jobs := make([]job, 0, len(m.order))
	for _, id := range m.order {
		vs := m.vehicles[id]
		self, ok := snapshot.Get(id)
		if !ok {
			continue
		}
		light, hasLight := m.lights[vs.intersectionID]
		lightGreenForSelf := !hasLight
		if hasLight {
			green, isGreen := greenFromPhase(light.State().Phase)
			lightGreenForSelf = isGreen && green == trafficlight.DirectionForHeading(vs.heading)
		}
		zone, controlled := m.intersections[vs.intersectionID], false
		if zone != nil {
			controlled = zone.Controlled
		}
		jobs = append(jobs, job{
			vs: vs,
			in: agent.Inputs{
				Self:                   self,
				Snapshot:               snapshot,
				CollisionPairs:         pairs,
				Advisory:               result.Get(id),
				InsideIntersection:     vs.insideIntersection,
				IntersectionControlled: controlled,
				LightGreenForSelf:      lightGreenForSelf,
				CoordinatorAdmitted:    m.coordDecisions[vs.intersectionID].IsAdmitted(id),
				ObservationRadius:      m.cfg.ObservationRadius,
				FollowGapSeconds:       m.cfg.FollowGapSeconds,
				VMax:                   m.cfg.VMax,
			},
		})
	}

	workers := m.cfg.WorkerPoolSize
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if len(jobs) > 0 && workers > len(jobs) {
		workers = len(jobs)
	}
	if workers < 1 {
		workers = 1
	}

	results := make(map[v2x.AgentId]agent.Decision, len(jobs))
	var resultsMu sync.Mutex
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()

			decision, faulted := m.safeDecide(ctx, tick, now, j.vs, j.in)
			actor := logging.EntityRef{Kind: logging.EntityKindAgent, ID: string(j.vs.id)}
			if faulted {
				j.vs.consecutiveFaults++
				agentlog.DecisionFault(ctx, m.logger, tick, actor, j.vs.consecutiveFaults)
			} else {
				j.vs.consecutiveFaults = 0
			}

			resultsMu.Lock()
			results[j.vs.id] = decision
			resultsMu.Unlock()
		}(j)
	}
	wg.Wait()
	return results
}

// safeDecide runs one vehicle's decision pipeline, recovering from a panic
// so one agent's fault never stalls the tick for everyone else: a faulted
// agent falls back to a forced stop for that tick, per the fault-isolation
// rule.
func (m *Manager) safeDecide(ctx context.Context, tick uint64, now time.Time, vs *vehicleState, in agent.Inputs) (decision agent.Decision, faulted bool) {
	defer func() {
		if r := recover(); r != nil {
			faulted = true
			decision = agent.Decision{Action: agent.ActionStop, TargetSpeed: 0, Reason: "decision fault recovered"}
		}
	}()
	decision = vs.pipeline.Decide(ctx, tick, now, in)
	return decision, false
}

// approach returns v moved toward target by at most one comfortable
// accel/decel step, clamped to non-negative.
func approach(current, target, dt float64) float64 {
	const accel = 4.0 // m/s^2
	maxDelta := accel * dt
	diff := target - current
	if diff > maxDelta {
		diff = maxDelta
	} else if diff < -maxDelta {
		diff = -maxDelta
	}
	v := current + diff
	if v < 0 {
		v = 0
	}
	return v
}

func normalizeHeading(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// applyDecisions integrates kinematics for every vehicle from its
// committed decision, single-threaded since positions must update
// consistently before the next tick's perception phase.
func (m *Manager) applyDecisions(ctx context.Context, tick uint64, dt float64, decisions map[v2x.AgentId]agent.Decision) {
	var toDespawn []v2x.AgentId
	for _, id := range m.order {
		vs := m.vehicles[id]
		decision, ok := decisions[id]
		if !ok {
			continue
		}
		vs.lastDecision = decision
		if decision.AdvisorUsed {
			vs.llmCalls++
		}
		if decision.Action == agent.ActionBrake && decision.Reason == "imminent collision" {
			m.lateYields++
		}

		vs.v = approach(vs.v, decision.TargetSpeed, dt)
		vs.pullingOver = decision.Action == agent.ActionPullOver

		heading := vs.heading + decision.HeadingNoiseDeg
		rad := heading * math.Pi / 180
		vs.x += vs.v * dt * math.Sin(rad)
		vs.y += vs.v * dt * math.Cos(rad)
		if decision.HeadingNoiseDeg != 0 {
			vs.heading = normalizeHeading(heading)
		}

		if vs.consecutiveFaults >= m.cfg.MaxConsecutiveFaults {
			toDespawn = append(toDespawn, id)
		}
	}
	for _, id := range toDespawn {
		actor := logging.EntityRef{Kind: logging.EntityKindAgent, ID: string(id)}
		agentlog.FaultDespawn(ctx, m.logger, tick, actor, m.vehicles[id].consecutiveFaults)
		m.despawnVehicle(id)
	}
}

// updateBackgroundLifecycle re-rolls intent for background vehicles that
// just cleared an intersection, despawns background vehicles that have
// exited the grid, and asks the background driver to top the population
// back up when enabled.
func (m *Manager) updateBackgroundLifecycle(ctx context.Context) {
	var toDespawn []v2x.AgentId
	for _, id := range m.order {
		vs := m.vehicles[id]
		insideNow := vs.insideIntersection
		if vs.background {
			if vs.wasInside && !insideNow {
				vs.intent = m.backgroundDriver.RollIntent()
			}
			if vs.hasEntered && !insideNow {
				if iz, ok := m.intersections[vs.intersectionID]; ok {
					if dist(vs.x, vs.y, iz.CenterX, iz.CenterY) > backgroundExitRadius {
						toDespawn = append(toDespawn, id)
					}
				}
			}
		}
		if insideNow {
			vs.hasEntered = true
		}
		vs.wasInside = insideNow
	}
	for _, id := range toDespawn {
		m.despawnVehicle(id)
	}

	if !m.backgroundEnabled {
		return
	}
	live := 0
	for _, id := range m.order {
		if m.vehicles[id].background {
			live++
		}
	}
	for _, req := range m.backgroundDriver.Maintain(live) {
		m.spawnBackgroundVehicle(req)
	}
}

func (m *Manager) spawnBackgroundVehicle(req background.SpawnRequest) {
	vs := m.newVehicleState(req.ID, agent.ProfileNormal, req.X, req.Y, req.Heading, req.SpeedMPS, req.Intent, true)
	m.addVehicle(vs)
}
