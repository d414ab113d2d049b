package types

// FaceSample is one capture from an external detector: either an ordered
// list of [x, y] landmarks or a 128-d embedding.
type FaceSample struct {
	Landmarks  [][2]float64 `json:"landmarks,omitempty"`
	Descriptor []float64    `json:"descriptor,omitempty"`
}

type EnrollFaceRequest struct {
	Kind    string       `json:"kind,omitempty"` // "landmarks" (default) or "embedding128"
	Samples []FaceSample `json:"samples"`
}

type EnrollFaceResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	FaceID      string `json:"face_id"`
	Kind        string `json:"kind"`
	SampleCount int    `json:"sample_count"`
}

type FaceProfileView struct {
	FaceID      string `json:"face_id"`
	UserID      string `json:"user_id"`
	Kind        string `json:"kind"`
	SampleCount int    `json:"sample_count"`
	CreatedAt   string `json:"created_at"`
}

type VerifyFaceRequest struct {
	Sample FaceSample `json:"sample"`
}

// VerificationResult is returned by every face verification call.
type VerificationResult struct {
	Verified          bool    `json:"verified"`
	Confidence        float64 `json:"confidence"`
	AverageConfidence float64 `json:"avg_confidence"`
	MatchCount        int     `json:"match_count"`
	TotalSamples      int     `json:"total_samples"`
	Threshold         float64 `json:"threshold"`
	MinMatches        int     `json:"min_matches"`
	Reason            string  `json:"reason,omitempty"`
}

type UnlockResult struct {
	OK        bool   `json:"ok"`
	Simulated bool   `json:"simulated"`
	Message   string `json:"message,omitempty"`
}

// FaceDecisionResponse is the outcome of the face stage of a request.
type FaceDecisionResponse struct {
	Status       string             `json:"status"`
	Message      string             `json:"message"`
	Verification VerificationResult `json:"verification"`
	Request      *AccessRequestView `json:"request,omitempty"`
	Unlock       *UnlockResult      `json:"unlock,omitempty"`
}

type IdentifyRequest struct {
	ModuleID string     `json:"module_id,omitempty"`
	Sample   FaceSample `json:"sample"`
}

type IdentifyResponse struct {
	Identified   bool               `json:"identified"`
	UserID       string             `json:"user_id,omitempty"`
	Name         string             `json:"name,omitempty"`
	Category     string             `json:"category,omitempty"`
	Verification VerificationResult `json:"verification"`
	Unlock       *UnlockResult      `json:"unlock,omitempty"`
}
