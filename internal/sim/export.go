package sim

import (
	"math"
	"sort"
)

// exportLocked builds the get_state document from the manager's current
// state. Callers must hold m.mu.
func (m *Manager) exportLocked() ExportedState {
	agents := make(map[string]AgentExport, len(m.order))
	for _, id := range m.order {
		vs := m.vehicles[id]
		agents[string(id)] = AgentExport{
			X:                  sanitizeFloat(vs.x),
			Y:                  sanitizeFloat(vs.y),
			V:                  sanitizeFloat(vs.v),
			Theta:              sanitizeFloat(normalizeHeading(vs.heading)),
			Decision:           string(vs.lastDecision.Action),
			Reason:             vs.lastDecision.Reason,
			RiskLevel:          string(vs.lastRisk),
			IsEmergency:        vs.flags.IsEmergency,
			IsPolice:           vs.flags.IsPolice,
			IsDrunk:            vs.flags.IsDrunk,
			PullingOver:        vs.pullingOver,
			InsideIntersection: vs.insideIntersection,
			LLMCalls:           vs.llmCalls,
		}
	}

	infra := make(map[string]InfrastructureExport, len(m.lights))
	for id, light := range m.lights {
		st := light.State()
		infra[id] = InfrastructureExport{Phase: string(st.Phase), PhaseRemaining: sanitizeFloat(st.Remaining)}
	}

	pairs := make([]CollisionPairExport, 0, len(m.lastPairs))
	for _, p := range m.lastPairs {
		pairs = append(pairs, CollisionPairExport{
			Agent1: string(p.A),
			Agent2: string(p.B),
			TTC:    sanitizeFloat(p.TTC),
			Risk:   string(p.Risk),
		})
	}

	ids := make([]string, 0, len(m.intersections))
	for id := range m.intersections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	points := make([]IntersectionPoint, 0, len(ids))
	demo := ""
	for i, id := range ids {
		iz := m.intersections[id]
		points = append(points, IntersectionPoint{X: iz.CenterX, Y: iz.CenterY})
		if i == 0 {
			demo = id
		}
	}

	return ExportedState{
		Running:        m.running,
		Scenario:       m.scenarioID,
		Tick:           m.tick,
		T:              m.elapsed,
		Agents:         agents,
		Infrastructure: infra,
		CollisionPairs: pairs,
		Grid: GridExport{
			Intersections:    points,
			GridSpacing:      m.cfg.GridSpacing,
			DemoIntersection: demo,
			Cols:             m.cfg.GridCols,
			Rows:             m.cfg.GridRows,
		},
		Stats: StatsExport{
			ElapsedTime:         m.elapsed,
			CollisionsPrevented: m.collisionsPrevented,
			CooperationScore:    m.cooperationScore(),
		},
	}
}

func sanitizeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// cooperationScore implements the formula
// 100 - k1*near_misses - k2*late_yields + k3*successful_preemptions,
// clamped to [0, 100]. near_misses sums every live agent's own memory
// near-miss count.
func (m *Manager) cooperationScore() float64 {
	var nearMisses int
	for _, id := range m.order {
		nearMisses += m.vehicles[id].pipeline.Memory.NearMissCount()
	}
	score := 100 - m.cfg.CooperationK1*float64(nearMisses) - m.cfg.CooperationK2*float64(m.lateYields) + m.cfg.CooperationK3*float64(m.successfulPreemptions)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
