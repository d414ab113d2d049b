package face

import "math"

// Kind identifies which representation a profile was enrolled with.
type Kind string

const (
	KindLandmarks Kind = "landmarks"
	KindEmbedding Kind = "embedding128"
)

func (k Kind) Valid() bool {
	return k == KindLandmarks || k == KindEmbedding
}

// Policy is the two-part gate a probe must clear against a profile.
//
// For landmark profiles Threshold is a minimum similarity; for embedding
// profiles it is a maximum Euclidean distance.
type Policy struct {
	Threshold  float64
	MinMatches int
	MinSamples int
}

var (
	LandmarkPolicy  = Policy{Threshold: 0.70, MinMatches: 5, MinSamples: 5}
	EmbeddingPolicy = Policy{Threshold: 0.6, MinMatches: 8, MinSamples: 15}
)

// PolicyFor returns the default policy for a profile kind.
func PolicyFor(k Kind) Policy {
	if k == KindEmbedding {
		return EmbeddingPolicy
	}
	return LandmarkPolicy
}

// Probe is a freshly captured sample. Only the field matching the
// target's kind is consulted.
type Probe struct {
	Landmarks Landmarks
	Embedding []float64
}

// Template is an enrolled profile reduced to what the engine needs.
type Template struct {
	ID         string
	Kind       Kind
	Landmarks  []Landmarks
	Embeddings [][]float64
}

func (t Template) size() int {
	if t.Kind == KindEmbedding {
		return len(t.Embeddings)
	}
	return len(t.Landmarks)
}

type Reason string

const (
	ReasonVerified               Reason = "verified"
	ReasonLowConfidence          Reason = "low_confidence"
	ReasonInsufficientMatches    Reason = "insufficient_matches"
	ReasonInsufficientEnrollment Reason = "insufficient_enrollment"
)

// Verification is the outcome of checking one probe against one template.
// Confidence is the best per-sample similarity.
type Verification struct {
	Verified          bool
	Confidence        float64
	AverageConfidence float64
	BestDistance      float64 // embedding profiles only
	MatchCount        int
	TotalSamples      int
	Threshold         float64
	MinMatches        int
	Reason            Reason
}

// Err returns the sentinel matching a failed verification, or nil.
func (v Verification) Err() error {
	switch v.Reason {
	case ReasonLowConfidence:
		return ErrLowConfidence
	case ReasonInsufficientMatches:
		return ErrInsufficientMatches
	case ReasonInsufficientEnrollment:
		return ErrInsufficientEnrollment
	}
	return nil
}

// Verify applies the template's default policy.
func Verify(p Probe, t Template) (Verification, error) {
	return VerifyWith(p, t, PolicyFor(t.Kind))
}

// VerifyWith scores p against every sample in t and applies pol. A template
// smaller than pol.MinSamples can never pass and yields
// ErrInsufficientEnrollment with Reason set accordingly.
func VerifyWith(p Probe, t Template, pol Policy) (Verification, error) {
	v := Verification{
		TotalSamples: t.size(),
		Threshold:    pol.Threshold,
		MinMatches:   pol.MinMatches,
	}

	if v.TotalSamples < pol.MinSamples || v.TotalSamples < pol.MinMatches {
		v.Reason = ReasonInsufficientEnrollment
		return v, ErrInsufficientEnrollment
	}

	switch t.Kind {
	case KindLandmarks:
		if len(p.Landmarks) == 0 {
			return v, ErrProbeKind
		}
		verifyLandmarks(&v, p.Landmarks, t.Landmarks, pol)
	case KindEmbedding:
		if len(p.Embedding) == 0 {
			return v, ErrProbeKind
		}
		verifyEmbedding(&v, p.Embedding, t.Embeddings, pol)
	default:
		return v, ErrProbeKind
	}

	switch {
	case v.MatchCount >= pol.MinMatches:
		v.Verified = true
		v.Reason = ReasonVerified
	case v.MatchCount == 0:
		v.Reason = ReasonLowConfidence
	default:
		v.Reason = ReasonInsufficientMatches
	}
	return v, nil
}

func verifyLandmarks(v *Verification, probe Landmarks, samples []Landmarks, pol Policy) {
	var total float64
	for _, s := range samples {
		sim := Similarity(probe, s)
		total += sim
		if sim > v.Confidence {
			v.Confidence = sim
		}
		if sim >= pol.Threshold {
			v.MatchCount++
		}
	}
	v.AverageConfidence = total / float64(len(samples))
}

func verifyEmbedding(v *Verification, probe []float64, samples [][]float64, pol Policy) {
	var total float64
	v.BestDistance = math.Inf(1)
	for _, s := range samples {
		d := EmbeddingDistance(probe, s)
		total += 1 - math.Min(d, 1)
		if d < v.BestDistance {
			v.BestDistance = d
		}
		if d < pol.Threshold {
			v.MatchCount++
		}
	}
	v.Confidence = 1 - math.Min(v.BestDistance, 1)
	v.AverageConfidence = total / float64(len(samples))
}

// Identification is the best-match result across many templates. When
// nothing is identified, Verification holds the closest evaluated miss.
type Identification struct {
	Identified   bool
	TemplateID   string
	Verification Verification
	Evaluated    int
}

// Identify runs the decision rule against every template and returns the
// verified template with the highest confidence. Templates that cannot be
// evaluated (too small, wrong kind) are skipped. Ties keep the earlier
// template, so callers wanting a stable answer should pass a stable order.
func Identify(p Probe, templates []Template) Identification {
	var best Identification
	for _, t := range templates {
		v, err := Verify(p, t)
		if err != nil {
			continue
		}
		best.Evaluated++
		switch {
		case v.Verified:
			if !best.Identified || v.Confidence > best.Verification.Confidence {
				best.Identified = true
				best.TemplateID = t.ID
				best.Verification = v
			}
		case best.Identified:
		case best.Evaluated == 1 || v.Confidence > best.Verification.Confidence:
			best.Verification = v
		}
	}
	return best
}
