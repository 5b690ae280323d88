package collision

// Vec2 is a 2D point or vector in meters.
type Vec2 struct {
	X, Y float64
}

func (v Vec2) Add(o Vec2) Vec2      { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }
func (v Vec2) Dot(o Vec2) float64   { return v.X*o.X + v.Y*o.Y }

// CircleOverlap reports whether two circles of the given radii, centered at
// a and b, intersect.
func CircleOverlap(a, b Vec2, radiusA, radiusB float64) bool {
	dx := a.X - b.X
	dy := a.Y - b.Y
	r := radiusA + radiusB
	return dx*dx+dy*dy <= r*r
}
