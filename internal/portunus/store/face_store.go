package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
)

type FaceSampleRecord struct {
	Landmarks  face.Landmarks
	Embedding  []float64
	CapturedAt time.Time
}

// FaceProfileRecord is an enrolled face. Samples are written once with the
// profile and never modified.
type FaceProfileRecord struct {
	ID          string
	OwnerUserID string
	Kind        face.Kind
	Samples     []FaceSampleRecord
	CreatedAt   time.Time
}

// Template reduces the profile to what the similarity engine consumes.
func (p FaceProfileRecord) Template() face.Template {
	t := face.Template{ID: p.ID, Kind: p.Kind}
	for _, s := range p.Samples {
		if p.Kind == face.KindEmbedding {
			t.Embeddings = append(t.Embeddings, s.Embedding)
		} else {
			t.Landmarks = append(t.Landmarks, s.Landmarks)
		}
	}
	return t
}

type FaceProfileStore interface {
	GetProfile(ctx context.Context, id string) (FaceProfileRecord, error)
	// CreateProfile fails with ErrExists if the id is taken.
	CreateProfile(ctx context.Context, rec FaceProfileRecord) error
	DeleteProfile(ctx context.Context, id string) error
	ListProfiles(ctx context.Context, match func(FaceProfileRecord) bool) ([]FaceProfileRecord, error)
}
