package collision

import (
	"context"
	"math"
	"sort"

	"intersection-sim/server/internal/v2x"
	collisionevents "intersection-sim/server/logging"
	collisionlog "intersection-sim/server/logging/collision"
)

// Detector computes pairwise time-to-collision over a channel snapshot with
// a uniform-grid spatial prefilter so typical cost stays near O(n*k) instead
// of the O(n^2) worst case.
type Detector struct {
	PrefilterRadius float64 // cell size and neighbor-search radius, meters
	CollisionRadius float64 // s_collision, meters
	HorizonSeconds  float64

	Logger collisionevents.Publisher
}

// NewDetector constructs a detector with the given tuning. A nil logger
// disables telemetry emission.
func NewDetector(prefilterRadius, collisionRadius, horizonSeconds float64, logger collisionevents.Publisher) *Detector {
	if logger == nil {
		logger = collisionevents.NopPublisher()
	}
	return &Detector{
		PrefilterRadius: prefilterRadius,
		CollisionRadius: collisionRadius,
		HorizonSeconds:  horizonSeconds,
		Logger:          logger,
	}
}

func classify(ttc float64) RiskLevel {
	switch {
	case ttc <= 1.5:
		return RiskCollision
	case ttc <= 3:
		return RiskHigh
	case ttc <= 5:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Detect returns every pair above "low" risk, ordered (a, b) with a < b, and
// reported at most once per pair.
func (d *Detector) Detect(ctx context.Context, tick uint64, snapshot v2x.Snapshot) []Pair {
	ids := make([]v2x.AgentId, 0, snapshot.Len())
	snapshot.Each(func(id v2x.AgentId, _ v2x.Message) { ids = append(ids, id) })
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cellSize := d.PrefilterRadius
	if cellSize <= 0 {
		cellSize = 1
	}
	type cellKey struct{ cx, cy int }
	cellOf := func(x, y float64) cellKey {
		return cellKey{int(math.Floor(x / cellSize)), int(math.Floor(y / cellSize))}
	}
	cells := make(map[cellKey][]v2x.AgentId, len(ids))
	for _, id := range ids {
		msg, _ := snapshot.Get(id)
		key := cellOf(msg.X, msg.Y)
		cells[key] = append(cells[key], id)
	}

	seen := make(map[[2]v2x.AgentId]struct{})
	pairs := make([]Pair, 0)

	neighborOffsets := []cellKey{
		{0, 0}, {1, 0}, {-1, 0}, {0, 1}, {0, -1},
		{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
	}

	for _, a := range ids {
		msgA, _ := snapshot.Get(a)
		base := cellOf(msgA.X, msgA.Y)
		for _, off := range neighborOffsets {
			for _, b := range cells[cellKey{base.cx + off.cx, base.cy + off.cy}] {
				if a == b {
					continue
				}
				lo, hi := Key(a, b)
				dedupeKey := [2]v2x.AgentId{lo, hi}
				if _, ok := seen[dedupeKey]; ok {
					continue
				}
				seen[dedupeKey] = struct{}{}

				msgB, _ := snapshot.Get(b)
				dx := msgA.X - msgB.X
				dy := msgA.Y - msgB.Y
				if dx*dx+dy*dy > d.PrefilterRadius*d.PrefilterRadius {
					continue
				}

				ttc, ok := timeToCollision(msgA, msgB, d.CollisionRadius, d.HorizonSeconds)
				if !ok {
					continue
				}
				risk := classify(ttc)
				if risk == RiskLow {
					continue
				}
				pairs = append(pairs, Pair{A: lo, B: hi, TTC: ttc, Risk: risk})
				collisionlog.Pair(ctx, d.Logger, tick,
					collisionevents.EntityRef{Kind: collisionevents.EntityKindAgent, ID: string(lo)},
					collisionevents.EntityRef{Kind: collisionevents.EntityKindAgent, ID: string(hi)},
					ttc, string(risk))
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

// timeToCollision solves for the minimum t >= 0 within [0, horizon] such
// that the distance between the two agents' linearly extrapolated positions
// falls to or below collisionRadius. It returns ok=false when no such t
// exists within the horizon (including the parallel/non-converging case).
func timeToCollision(a, b v2x.Message, collisionRadius, horizon float64) (float64, bool) {
	ax, ay := headingVector(a.Heading)
	bx, by := headingVector(b.Heading)

	posA := Vec2{X: a.X, Y: a.Y}
	posB := Vec2{X: b.X, Y: b.Y}
	velA := Vec2{X: ax, Y: ay}.Scale(a.V)
	velB := Vec2{X: bx, Y: by}.Scale(b.V)

	// Relative position and velocity of b with respect to a.
	p := posB.Sub(posA)
	v := velB.Sub(velA)

	// Zero relative speed: either always apart, or already overlapping.
	speedSq := v.Dot(v)
	distSq := p.Dot(p)
	if speedSq < 1e-9 {
		if CircleOverlap(posA, posB, collisionRadius, 0) {
			return 0, true
		}
		return 0, false
	}

	// |p + v t|^2 = r^2  =>  (v.v) t^2 + 2(p.v) t + (p.p - r^2) = 0
	A := speedSq
	B := 2 * p.Dot(v)
	C := distSq - collisionRadius*collisionRadius

	if C <= 0 {
		// Already overlapping.
		return 0, true
	}

	disc := B*B - 4*A*C
	if disc < 0 {
		return 0, false
	}
	sqrtDisc := math.Sqrt(disc)
	t1 := (-B - sqrtDisc) / (2 * A)
	t2 := (-B + sqrtDisc) / (2 * A)

	root := math.Inf(1)
	if t1 >= 0 && t1 < root {
		root = t1
	}
	if t2 >= 0 && t2 < root {
		root = t2
	}
	if math.IsInf(root, 1) || root > horizon {
		return 0, false
	}
	return root, true
}

func headingVector(degrees float64) (float64, float64) {
	rad := degrees * math.Pi / 180
	return math.Sin(rad), math.Cos(rad)
}
