package advisor

import "context"

// Heuristic is a deterministic stand-in for the real advisor backend,
// which is opaque and reached over a transport this package does not
// implement. It answers using only the compact context, the same
// information the real backend would receive, so wiring in an actual
// network client later only means swapping the Advisor implementation.
type Heuristic struct {
	// Rand returns a value in [0,1); injected for determinism in tests and
	// scenario replay rather than reading a global source.
	Rand func() float64
}

// NewHeuristic constructs a Heuristic. A nil rand defaults to always 0,
// which is deterministic but never triggers the random speed shading
// below; callers that want variation must inject one.
func NewHeuristic(rand func() float64) *Heuristic {
	if rand == nil {
		rand = func() float64 { return 0 }
	}
	return &Heuristic{Rand: rand}
}

func (h *Heuristic) Advise(_ context.Context, reqCtx Context) (Decision, error) {
	if reqCtx.Advisory == "must_yield" {
		return Decision{Action: ActionYield, Speed: 0, Reason: "yielding per priority advisory"}, nil
	}

	nearest, ok := nearestPeer(reqCtx)
	if !ok {
		return Decision{Action: ActionGo, Speed: reqCtx.V, Reason: "no conflicting traffic in view"}, nil
	}
	if nearest.Distance < 6 {
		return Decision{Action: ActionBrake, Speed: 0, Reason: "peer within braking distance"}, nil
	}
	shade := 1 - 0.2*h.Rand()
	return Decision{Action: ActionGo, Speed: reqCtx.V * shade, Reason: "clear approach, moderating for nearest peer"}, nil
}

func nearestPeer(reqCtx Context) (PeerSummary, bool) {
	var best PeerSummary
	found := false
	for _, p := range reqCtx.Peers {
		if !found || p.Distance < best.Distance {
			best = p
			found = true
		}
	}
	return best, found
}
