package face_test

import (
	"errors"
	"math"
	"testing"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face/facetest"
)

// ── Normalize ────────────────────────────────────────────────────────────────

func TestNormalize_CentersAndScalesBoundingBox(t *testing.T) {
	n, err := face.Normalize(facetest.Scaled())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	minX, maxX, minY, maxY := math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)
	for _, p := range n {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	if got := math.Max(maxX-minX, maxY-minY); math.Abs(got-1) > 1e-12 {
		t.Errorf("expected larger box dimension 1, got %v", got)
	}
	if cx := (minX + maxX) / 2; math.Abs(cx) > 1e-12 {
		t.Errorf("expected box centred on x=0, got %v", cx)
	}
	if cy := (minY + maxY) / 2; math.Abs(cy) > 1e-12 {
		t.Errorf("expected box centred on y=0, got %v", cy)
	}
}

func TestNormalize_DegenerateBox(t *testing.T) {
	cases := map[string]face.Landmarks{
		"empty":      nil,
		"horizontal": {{X: 0, Y: 5}, {X: 10, Y: 5}, {X: 20, Y: 5}},
		"vertical":   {{X: 3, Y: 0}, {X: 3, Y: 9}},
		"nan":        {{X: 0, Y: 0}, {X: math.NaN(), Y: 1}},
	}
	for name, l := range cases {
		if _, err := face.Normalize(l); !errors.Is(err, face.ErrDegenerateInput) {
			t.Errorf("%s: expected ErrDegenerateInput, got %v", name, err)
		}
	}
}

// ── Descriptor ───────────────────────────────────────────────────────────────

func TestDescriptor_Length(t *testing.T) {
	d, err := face.Descriptor(facetest.Face())
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	// 17 points: 136 pairs + 15 triplets*2 + 17 centroid distances + 2 stds.
	if len(d) != 185 {
		t.Errorf("expected 185 features, got %d", len(d))
	}
}

func TestDescriptorSimilarity_MismatchedLengthIsZero(t *testing.T) {
	if got := face.DescriptorSimilarity([]float64{1, 2, 3}, []float64{1, 2}); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

// ── Similarity ───────────────────────────────────────────────────────────────

func TestSimilarity_Deterministic(t *testing.T) {
	a, b := facetest.Face(), facetest.Jitter2()
	first := face.Similarity(a, b)
	for i := 0; i < 20; i++ {
		if got := face.Similarity(a, b); got != first {
			t.Fatalf("run %d: expected %v, got %v", i, first, got)
		}
	}
}

func TestSimilarity_IdenticalSetsScoreOne(t *testing.T) {
	if got := face.Similarity(facetest.Face(), facetest.Face()); got < 0.999 {
		t.Errorf("expected ~1.0, got %v", got)
	}
}

func TestSimilarity_InvariantUnderScaleAndQuarterTurns(t *testing.T) {
	ref := facetest.Face()
	for name, l := range map[string]face.Landmarks{
		"scaled": facetest.Scaled(),
		"rot90":  facetest.Rot90(),
		"rot180": facetest.Rot180(),
	} {
		if got := face.Similarity(ref, l); got < 0.95 {
			t.Errorf("%s: expected >= 0.95, got %v", name, got)
		}
	}
}

// rotate turns l by deg degrees about the origin and shifts it.
func rotate(l face.Landmarks, deg float64) face.Landmarks {
	theta := deg * math.Pi / 180
	c, s := math.Cos(theta), math.Sin(theta)
	out := make(face.Landmarks, len(l))
	for i, p := range l {
		out[i] = face.Point{X: p.X*c - p.Y*s + 7, Y: p.X*s + p.Y*c - 3}
	}
	return out
}

func TestSimilarity_InvariantUnderArbitraryRotation(t *testing.T) {
	ref := facetest.Face()
	for _, deg := range []float64{10, 30, 45, 60, 135, 200, 315} {
		s := face.Compare(ref, rotate(ref, deg))
		if s.Similarity < 0.95 {
			t.Errorf("%v°: expected >= 0.95, got %v (%+v)", deg, s.Similarity, s)
		}
	}
}

func TestDescriptor_RotationInvariant(t *testing.T) {
	ref, err := face.Descriptor(facetest.Face())
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	for _, deg := range []float64{45, 90} {
		got, err := face.Descriptor(rotate(facetest.Face(), deg))
		if err != nil {
			t.Fatalf("Descriptor: %v", err)
		}
		for i := range ref {
			if math.Abs(ref[i]-got[i]) > 1e-9 {
				t.Fatalf("%v°: feature %d changed from %v to %v", deg, i, ref[i], got[i])
			}
		}
	}
}

func TestSimilarity_GenuineVersusImpostor(t *testing.T) {
	ref := facetest.Face()
	for i, l := range facetest.Genuine() {
		if got := face.Similarity(ref, l); got < 0.85 {
			t.Errorf("genuine %d: expected >= 0.85, got %v", i, got)
		}
	}
	for i, l := range facetest.Impostors() {
		if got := face.Similarity(ref, l); got >= 0.70 {
			t.Errorf("impostor %d: expected < 0.70, got %v", i, got)
		}
	}
}

func TestSimilarity_DegenerateInputsScoreZero(t *testing.T) {
	ref := facetest.Face()
	line := make(face.Landmarks, len(ref))
	for i := range line {
		line[i] = face.Point{X: float64(i), Y: 5}
	}

	if got := face.Similarity(ref, line); got != 0 {
		t.Errorf("zero-height box: expected 0, got %v", got)
	}
	if got := face.Similarity(ref, ref[:10]); got != 0 {
		t.Errorf("mismatched lengths: expected 0, got %v", got)
	}
}

func TestCompare_ComponentsInUnitRange(t *testing.T) {
	s := face.Compare(facetest.Face(), facetest.Zigzag())
	for name, v := range map[string]float64{
		"similarity": s.Similarity,
		"procrustes": s.Procrustes,
		"descriptor": s.Descriptor,
		"neighbor":   s.Neighbor,
	} {
		if v < 0 || v > 1 {
			t.Errorf("%s: expected value in [0,1], got %v", name, v)
		}
	}
}

// ── Decision rule (landmarks) ────────────────────────────────────────────────

func landmarkTemplate(id string, samples ...face.Landmarks) face.Template {
	return face.Template{ID: id, Kind: face.KindLandmarks, Landmarks: samples}
}

func TestVerify_SixOfEightSamplesMatch(t *testing.T) {
	samples := append(facetest.Genuine(), facetest.Impostors()...)
	v, err := face.Verify(face.Probe{Landmarks: facetest.Face()}, landmarkTemplate("p1", samples...))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !v.Verified {
		t.Fatalf("expected verified, got %+v", v)
	}
	if v.MatchCount != 6 {
		t.Errorf("expected 6 matches, got %d", v.MatchCount)
	}
	if v.TotalSamples != 8 {
		t.Errorf("expected 8 samples, got %d", v.TotalSamples)
	}
	if v.Threshold != 0.70 {
		t.Errorf("expected threshold 0.70, got %v", v.Threshold)
	}
	if v.Reason != face.ReasonVerified || v.Err() != nil {
		t.Errorf("expected reason verified with nil Err, got %q / %v", v.Reason, v.Err())
	}
}

func TestVerify_FourOfFiveIsInsufficientMatches(t *testing.T) {
	g := facetest.Genuine()
	tmpl := landmarkTemplate("p1", g[0], g[1], g[2], g[3], facetest.Zigzag())

	v, err := face.Verify(face.Probe{Landmarks: facetest.Face()}, tmpl)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Verified {
		t.Fatal("expected verified=false with only 4 qualifying samples")
	}
	if v.Confidence < 0.70 {
		t.Errorf("expected max similarity to clear the threshold, got %v", v.Confidence)
	}
	if v.MatchCount != 4 {
		t.Errorf("expected 4 matches, got %d", v.MatchCount)
	}
	if !errors.Is(v.Err(), face.ErrInsufficientMatches) {
		t.Errorf("expected ErrInsufficientMatches, got %v", v.Err())
	}
}

func TestVerify_NoMatchesIsLowConfidence(t *testing.T) {
	tmpl := landmarkTemplate("p1", facetest.Genuine()[:5]...)

	v, err := face.Verify(face.Probe{Landmarks: facetest.Zigzag()}, tmpl)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Verified {
		t.Fatal("expected verified=false")
	}
	if !errors.Is(v.Err(), face.ErrLowConfidence) {
		t.Errorf("expected ErrLowConfidence, got %v", v.Err())
	}
}

func TestVerify_TooFewSamplesIsInsufficientEnrollment(t *testing.T) {
	// A perfect single-sample match must still not verify.
	tmpl := landmarkTemplate("p1", facetest.Face(), facetest.Face(), facetest.Face(), facetest.Face())

	v, err := face.Verify(face.Probe{Landmarks: facetest.Face()}, tmpl)
	if !errors.Is(err, face.ErrInsufficientEnrollment) {
		t.Fatalf("expected ErrInsufficientEnrollment, got %v", err)
	}
	if v.Verified {
		t.Error("expected verified=false")
	}
	if v.Reason != face.ReasonInsufficientEnrollment {
		t.Errorf("expected reason insufficient_enrollment, got %q", v.Reason)
	}
}

func TestVerify_ProbeKindMismatch(t *testing.T) {
	tmpl := landmarkTemplate("p1", facetest.Genuine()...)
	if _, err := face.Verify(face.Probe{Embedding: facetest.Embedding()}, tmpl); !errors.Is(err, face.ErrProbeKind) {
		t.Errorf("expected ErrProbeKind, got %v", err)
	}
}

// ── Decision rule (embeddings) ───────────────────────────────────────────────

func TestEmbeddingDistance(t *testing.T) {
	if d := face.EmbeddingDistance(facetest.Embedding(), facetest.NearEmbedding()); math.Abs(d-0.12) > 1e-9 {
		t.Errorf("expected distance 0.12, got %v", d)
	}
	if d := face.EmbeddingDistance(facetest.Embedding(), facetest.Embedding()[:64]); d != 1 {
		t.Errorf("expected mismatched lengths to be distance 1, got %v", d)
	}
	if s := face.EmbeddingSimilarity(facetest.Embedding(), facetest.FarEmbedding()); s != 0 {
		t.Errorf("expected far embedding similarity 0, got %v", s)
	}
}

func TestVerify_EmbeddingProfile(t *testing.T) {
	probe := face.Probe{Embedding: facetest.Embedding()}

	v, err := face.Verify(probe, face.Template{Kind: face.KindEmbedding, Embeddings: facetest.Embeddings(10, 5)})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !v.Verified || v.MatchCount != 10 {
		t.Errorf("expected verified with 10 matches, got %+v", v)
	}
	if math.Abs(v.Confidence-0.88) > 1e-9 {
		t.Errorf("expected confidence 0.88, got %v", v.Confidence)
	}

	v, err = face.Verify(probe, face.Template{Kind: face.KindEmbedding, Embeddings: facetest.Embeddings(7, 8)})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Verified {
		t.Error("expected verified=false with 7 of 15 matching")
	}
	if !errors.Is(v.Err(), face.ErrInsufficientMatches) {
		t.Errorf("expected ErrInsufficientMatches, got %v", v.Err())
	}
}

func TestVerify_EmbeddingProfileNeedsFifteenSamples(t *testing.T) {
	probe := face.Probe{Embedding: facetest.Embedding()}
	_, err := face.Verify(probe, face.Template{Kind: face.KindEmbedding, Embeddings: facetest.Embeddings(14, 0)})
	if !errors.Is(err, face.ErrInsufficientEnrollment) {
		t.Errorf("expected ErrInsufficientEnrollment, got %v", err)
	}
}

func TestValidateEmbedding(t *testing.T) {
	if err := face.ValidateEmbedding(facetest.Embedding()); err != nil {
		t.Errorf("expected valid embedding, got %v", err)
	}
	if err := face.ValidateEmbedding(make([]float64, 127)); !errors.Is(err, face.ErrDegenerateInput) {
		t.Errorf("expected ErrDegenerateInput, got %v", err)
	}
}

// ── Identify ─────────────────────────────────────────────────────────────────

func TestIdentify_PicksVerifiedTemplate(t *testing.T) {
	templates := []face.Template{
		landmarkTemplate("zigzag", facetest.ZigzagProfile()...),
		landmarkTemplate("face", facetest.Genuine()...),
		landmarkTemplate("tiny", facetest.Face()),
	}

	id := face.Identify(face.Probe{Landmarks: facetest.Face()}, templates)
	if !id.Identified {
		t.Fatal("expected identification")
	}
	if id.TemplateID != "face" {
		t.Errorf("expected template face, got %q", id.TemplateID)
	}
	if id.Evaluated != 2 {
		t.Errorf("expected 2 evaluated templates (tiny skipped), got %d", id.Evaluated)
	}

	id = face.Identify(face.Probe{Landmarks: facetest.Zigzag()}, templates)
	if !id.Identified || id.TemplateID != "zigzag" {
		t.Errorf("expected zigzag identified, got %+v", id)
	}
}

func TestIdentify_UnidentifiedIsNotAnError(t *testing.T) {
	templates := []face.Template{landmarkTemplate("face", facetest.Genuine()...)}

	id := face.Identify(face.Probe{Landmarks: facetest.Reversed()}, templates)
	if id.Identified {
		t.Errorf("expected unidentified, got %+v", id)
	}
	if id.Evaluated != 1 {
		t.Errorf("expected 1 evaluated template, got %d", id.Evaluated)
	}
	if id.TemplateID != "" {
		t.Errorf("expected no template id, got %q", id.TemplateID)
	}
	if id.Verification.Verified || id.Verification.Confidence <= 0 {
		t.Errorf("expected closest miss to be reported, got %+v", id.Verification)
	}
}
