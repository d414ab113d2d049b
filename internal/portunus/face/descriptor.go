package face

import "math"

// Descriptor builds the rotation/scale-invariant feature vector for a
// landmark set. Layout, in order:
//
//	pairwise distances        n(n-1)/2
//	cos, sin of turning angle 2(n-2)
//	distance to centroid      n
//	std along principal axes  2 (major, minor)
//
// Lengths are divided by the set's centroid size. The bounding box that
// Normalize scales by grows and shrinks as a face turns; the centroid size
// does not.
func Descriptor(l Landmarks) ([]float64, error) {
	nl, err := Normalize(l)
	if err != nil {
		return nil, err
	}
	n := centred(nl)
	k := 1 / centroidSize(n)

	count := len(n)
	size := count*(count-1)/2 + count + 2
	if count > 2 {
		size += 2 * (count - 2)
	}
	f := make([]float64, 0, size)

	for i := 0; i < count-1; i++ {
		for j := i + 1; j < count; j++ {
			f = append(f, dist(n[i], n[j])*k)
		}
	}

	for i := 0; i+2 < count; i++ {
		p1, p2, p3 := n[i], n[i+1], n[i+2]
		a := math.Atan2(p3.Y-p2.Y, p3.X-p2.X) - math.Atan2(p1.Y-p2.Y, p1.X-p2.X)
		f = append(f, math.Cos(a), math.Sin(a))
	}

	var sxx, syy, sxy float64
	for _, p := range n {
		f = append(f, math.Hypot(p.X, p.Y)*k)
		sxx += p.X * p.X
		syy += p.Y * p.Y
		sxy += p.X * p.Y
	}
	major, minor := principalStd(sxx/float64(count), syy/float64(count), sxy/float64(count))
	f = append(f, major*k, minor*k)

	return f, nil
}

// principalStd returns the standard deviations along the major and minor
// axes of a 2x2 covariance matrix. Unlike per-axis std they do not change
// or swap when the set rotates.
func principalStd(sxx, syy, sxy float64) (float64, float64) {
	half := (sxx + syy) / 2
	disc := math.Sqrt(math.Max(0, half*half-(sxx*syy-sxy*sxy)))
	return math.Sqrt(half + disc), math.Sqrt(math.Max(0, half-disc))
}

// DescriptorSimilarity blends Pearson correlation, cosine similarity and
// RMS Euclidean distance (weights 0.4/0.4/0.2), each mapped into [0, 1].
// Vectors of different length score 0.
func DescriptorSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	n := float64(len(a))

	var sumA, sumB, sumAA, sumBB, sumAB, sq float64
	for i := range a {
		sumA += a[i]
		sumB += b[i]
		sumAA += a[i] * a[i]
		sumBB += b[i] * b[i]
		sumAB += a[i] * b[i]
		d := a[i] - b[i]
		sq += d * d
	}

	corr := 0.0
	num := sumAB - sumA*sumB/n
	den := (sumAA - sumA*sumA/n) * (sumBB - sumB*sumB/n)
	if den > 0 {
		corr = num / math.Sqrt(den)
	}
	corrScore := (corr + 1) / 2

	cosScore := 0.0
	if magA, magB := math.Sqrt(sumAA), math.Sqrt(sumBB); magA > 0 && magB > 0 {
		cosScore = (sumAB/(magA*magB) + 1) / 2
	}

	euclidScore := math.Max(0, 1-math.Sqrt(sq/n))

	return clamp01(0.4*corrScore + 0.4*cosScore + 0.2*euclidScore)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
