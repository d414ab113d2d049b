// Package facetest provides deterministic landmark and embedding fixtures
// for tests that exercise face verification.
package facetest

import "github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"

var base = [][2]float64{
	{100, 40}, {140, 55}, {160, 100}, {150, 150}, {120, 185}, {80, 185},
	{50, 150}, {40, 100}, {60, 55}, {75, 90}, {90, 88}, {110, 88},
	{125, 90}, {100, 115}, {100, 130}, {85, 150}, {115, 150},
}

// Face is the reference 17-point landmark set.
func Face() face.Landmarks {
	return face.FromPairs(base)
}

func transform(f func(i int, x, y float64) (float64, float64)) face.Landmarks {
	out := make(face.Landmarks, len(base))
	for i, p := range base {
		x, y := f(i, p[0], p[1])
		out[i] = face.Point{X: x, Y: y}
	}
	return out
}

// Scaled is Face scaled by 2.5 and translated.
func Scaled() face.Landmarks {
	return transform(func(_ int, x, y float64) (float64, float64) { return x*2.5 + 300, y*2.5 - 40 })
}

// Rot90 is Face rotated a quarter turn and translated.
func Rot90() face.Landmarks {
	return transform(func(_ int, x, y float64) (float64, float64) { return -y + 500, x + 20 })
}

// Rot180 is Face rotated a half turn.
func Rot180() face.Landmarks {
	return transform(func(_ int, x, y float64) (float64, float64) { return -x, -y })
}

// Jitter is Face with up to ±3px of deterministic noise per coordinate.
func Jitter() face.Landmarks {
	return transform(func(i int, x, y float64) (float64, float64) {
		return x + float64((i*7)%5-2)*1.5, y + float64((i*11)%5-2)*1.5
	})
}

// Jitter2 is Face with up to ±6px of deterministic noise per coordinate.
func Jitter2() face.Landmarks {
	return transform(func(i int, x, y float64) (float64, float64) {
		return x + float64((i*3)%5-2)*3.0, y + float64((i*13)%5-2)*3.0
	})
}

// Reversed holds Face's points in reverse order, which breaks the
// point correspondence and scores around 0.5 against Face.
func Reversed() face.Landmarks {
	out := Face()
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Zigzag is an unrelated 17-point shape scoring around 0.4 against Face.
func Zigzag() face.Landmarks {
	out := make(face.Landmarks, len(base))
	for i := range out {
		out[i] = face.Point{X: float64(i * 10), Y: float64((i%2)*60 + (i*i)%7)}
	}
	return out
}

// Genuine returns six samples that each score at least 0.85 against Face.
func Genuine() []face.Landmarks {
	return []face.Landmarks{Face(), Scaled(), Rot90(), Rot180(), Jitter(), Jitter2()}
}

// Impostors returns two samples that each score below 0.70 against Face.
func Impostors() []face.Landmarks {
	return []face.Landmarks{Reversed(), Zigzag()}
}

// ZigzagProfile is five transformed copies of Zigzag.
func ZigzagProfile() []face.Landmarks {
	z := Zigzag()
	scale := func(k, dx, dy float64) face.Landmarks {
		out := make(face.Landmarks, len(z))
		for i, p := range z {
			out[i] = face.Point{X: p.X*k + dx, Y: p.Y*k + dy}
		}
		return out
	}
	return []face.Landmarks{z, scale(2, 0, 0), scale(1, 5, -3), scale(-1, 0, 0), scale(0.5, 1, 1)}
}

// Embedding returns the reference 128-d embedding.
func Embedding() []float64 {
	v := make([]float64, face.EmbeddingSize)
	for i := range v {
		v[i] = float64(i%7) / 10
	}
	return v
}

// NearEmbedding is Embedding shifted by 0.03 in its first 16 dimensions,
// a distance of 0.12.
func NearEmbedding() []float64 {
	v := Embedding()
	for i := 0; i < 16; i++ {
		v[i] += 0.03
	}
	return v
}

// FarEmbedding is Embedding shifted by 0.2 in every dimension, a distance
// of about 2.26.
func FarEmbedding() []float64 {
	v := Embedding()
	for i := range v {
		v[i] += 0.2
	}
	return v
}

// Embeddings returns near copies followed by far copies.
func Embeddings(near, far int) [][]float64 {
	out := make([][]float64, 0, near+far)
	for i := 0; i < near; i++ {
		out = append(out, NearEmbedding())
	}
	for i := 0; i < far; i++ {
		out = append(out, FarEmbedding())
	}
	return out
}
