package face

import "math"

const (
	procrustesScale = 5.0
	neighborScale   = 6.0

	weightProcrustes = 0.20
	weightDescriptor = 0.60
	weightNeighbor   = 0.20
)

// Score is a fused similarity along with the three estimators it came from.
// All values are in [0, 1].
type Score struct {
	Similarity float64
	Procrustes float64
	Descriptor float64
	Neighbor   float64
}

// Compare scores landmark set b against a. Sets of different length, or
// either set degenerate, score 0.
func Compare(a, b Landmarks) Score {
	if len(a) != len(b) {
		return Score{}
	}
	na, err := Normalize(a)
	if err != nil {
		return Score{}
	}
	nb, err := Normalize(b)
	if err != nil {
		return Score{}
	}
	da, err := Descriptor(a)
	if err != nil {
		return Score{}
	}
	db, err := Descriptor(b)
	if err != nil {
		return Score{}
	}

	// The bounding-box scale of a set depends on its orientation, so before
	// rotating b onto a both are centred on their centroids and b is scaled
	// to a's centroid size.
	ca, cb := centred(na), centred(nb)
	cb = scaleTo(cb, centroidSize(ca)/centroidSize(cb))
	aligned := Align(ca, cb)

	var s Score
	s.Procrustes = math.Max(0, 1-meanPointDistance(ca, aligned)*procrustesScale)
	s.Descriptor = DescriptorSimilarity(da, db)
	// The neighbour estimator runs on the aligned set so that a rotated
	// copy is not penalised twice.
	s.Neighbor = math.Max(0, 1-meanNearestDistance(ca, aligned)*neighborScale)
	s.Similarity = clamp01(weightProcrustes*s.Procrustes +
		weightDescriptor*s.Descriptor +
		weightNeighbor*s.Neighbor)
	return s
}

// Similarity is Compare(a, b).Similarity.
func Similarity(a, b Landmarks) float64 {
	return Compare(a, b).Similarity
}

// Align rotates b by the closed-form angle that best fits it onto a.
// Both sets must be of equal length and centred on their centroids.
func Align(a, b Landmarks) Landmarks {
	var num, den float64
	for i := range a {
		num += a[i].Y*b[i].X - a[i].X*b[i].Y
		den += a[i].X*b[i].X + a[i].Y*b[i].Y
	}
	theta := math.Atan2(num, den)
	c, s := math.Cos(theta), math.Sin(theta)

	out := make(Landmarks, len(b))
	for i, p := range b {
		out[i] = Point{X: p.X*c - p.Y*s, Y: p.X*s + p.Y*c}
	}
	return out
}

func scaleTo(l Landmarks, k float64) Landmarks {
	out := make(Landmarks, len(l))
	for i, p := range l {
		out[i] = Point{X: p.X * k, Y: p.Y * k}
	}
	return out
}

func meanPointDistance(a, b Landmarks) float64 {
	var total float64
	for i := range a {
		total += dist(a[i], b[i])
	}
	return total / float64(len(a))
}

func meanNearestDistance(a, b Landmarks) float64 {
	var total float64
	for _, p := range a {
		best := math.Inf(1)
		for _, q := range b {
			if d := dist(p, q); d < best {
				best = d
			}
		}
		total += best
	}
	return total / float64(len(a))
}
