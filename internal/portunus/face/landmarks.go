// Package face turns facial landmark sets and embedding vectors into
// verified/not-verified decisions. Everything here is pure: no I/O, no
// shared state, safe to call from any goroutine.
package face

import (
	"errors"
	"math"
)

var (
	ErrDegenerateInput        = errors.New("face: degenerate input")
	ErrInsufficientEnrollment = errors.New("face: insufficient enrollment")
	ErrLowConfidence          = errors.New("face: low confidence")
	ErrInsufficientMatches    = errors.New("face: insufficient matches")
	ErrProbeKind              = errors.New("face: probe does not match profile kind")
)

// Point is one 2-D landmark coordinate.
type Point struct {
	X, Y float64
}

// Landmarks is an ordered landmark set as produced by an external detector.
// Order matters: index i in one set is compared with index i in another.
type Landmarks []Point

// FromPairs converts [x, y] pairs (the wire format) into Landmarks.
func FromPairs(pairs [][2]float64) Landmarks {
	out := make(Landmarks, len(pairs))
	for i, p := range pairs {
		out[i] = Point{X: p[0], Y: p[1]}
	}
	return out
}

// Pairs is the inverse of FromPairs.
func (l Landmarks) Pairs() [][2]float64 {
	out := make([][2]float64, len(l))
	for i, p := range l {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}

// Normalize centres the set's bounding box on the origin and scales it so
// the larger box dimension is 1. A box with zero width or height (or any
// non-finite coordinate) yields ErrDegenerateInput.
func Normalize(l Landmarks) (Landmarks, error) {
	if len(l) == 0 {
		return nil, ErrDegenerateInput
	}

	minX, maxX := l[0].X, l[0].X
	minY, maxY := l[0].Y, l[0].Y
	for _, p := range l {
		if !finite(p.X) || !finite(p.Y) {
			return nil, ErrDegenerateInput
		}
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	w, h := maxX-minX, maxY-minY
	if w == 0 || h == 0 {
		return nil, ErrDegenerateInput
	}

	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	scale := math.Max(w, h)

	out := make(Landmarks, len(l))
	for i, p := range l {
		out[i] = Point{X: (p.X - cx) / scale, Y: (p.Y - cy) / scale}
	}
	return out, nil
}

// Validate reports whether l can take part in a comparison at all.
func Validate(l Landmarks) error {
	_, err := Normalize(l)
	return err
}

// centred translates l so its centroid is the origin.
func centred(l Landmarks) Landmarks {
	var cx, cy float64
	for _, p := range l {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(l))
	cy /= float64(len(l))

	out := make(Landmarks, len(l))
	for i, p := range l {
		out[i] = Point{X: p.X - cx, Y: p.Y - cy}
	}
	return out
}

// centroidSize is the RMS distance of a centred set's points from the
// origin.
func centroidSize(l Landmarks) float64 {
	var sum float64
	for _, p := range l {
		sum += p.X*p.X + p.Y*p.Y
	}
	return math.Sqrt(sum / float64(len(l)))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
