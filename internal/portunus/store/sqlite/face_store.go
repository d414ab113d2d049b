package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	dbpkg "github.com/BrandonDHaskell/Portunus/gate/internal/db"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

type FaceProfileStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewFaceProfileStore(db *sql.DB, writer *dbpkg.Worker) *FaceProfileStore {
	return &FaceProfileStore{db: db, writer: writer}
}

// samplePayload is the stored form of one sample. Landmarks are kept as
// [x, y] pairs.
type samplePayload struct {
	Landmarks [][2]float64 `json:"landmarks,omitempty"`
	Embedding []float64    `json:"embedding,omitempty"`
}

func encodeSample(s store.FaceSampleRecord) (string, error) {
	p := samplePayload{Embedding: s.Embedding}
	if len(s.Landmarks) > 0 {
		p.Landmarks = make([][2]float64, len(s.Landmarks))
		for i, pt := range s.Landmarks {
			p.Landmarks[i] = [2]float64{pt.X, pt.Y}
		}
	}
	b, err := json.Marshal(p)
	return string(b), err
}

func decodeSample(payload string) (store.FaceSampleRecord, error) {
	var p samplePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return store.FaceSampleRecord{}, err
	}
	s := store.FaceSampleRecord{Embedding: p.Embedding}
	if len(p.Landmarks) > 0 {
		s.Landmarks = make(face.Landmarks, len(p.Landmarks))
		for i, xy := range p.Landmarks {
			s.Landmarks[i] = face.Point{X: xy[0], Y: xy[1]}
		}
	}
	return s, nil
}

func (s *FaceProfileStore) CreateProfile(ctx context.Context, rec store.FaceProfileRecord) error {
	payloads := make([]string, len(rec.Samples))
	for i, smp := range rec.Samples {
		p, err := encodeSample(smp)
		if err != nil {
			return fmt.Errorf("CreateProfile encode sample %d: %w", i, err)
		}
		payloads[i] = p
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO face_profiles(face_id, owner_user_id, kind, created_at_ms)
VALUES (?, ?, ?, ?);
`, rec.ID, rec.OwnerUserID, string(rec.Kind), toMs(rec.CreatedAt))
		if err != nil {
			return fmt.Errorf("CreateProfile insert: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("CreateProfile %s: %w", rec.ID, store.ErrExists)
		}

		for i, smp := range rec.Samples {
			captured := smp.CapturedAt
			if captured.IsZero() {
				captured = rec.CreatedAt
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO face_samples(face_id, idx, payload, captured_at_ms)
VALUES (?, ?, ?, ?);
`, rec.ID, i, payloads[i], toMs(captured)); err != nil {
				return fmt.Errorf("CreateProfile insert sample %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *FaceProfileStore) GetProfile(ctx context.Context, id string) (store.FaceProfileRecord, error) {
	var (
		p         store.FaceProfileRecord
		kind      string
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT face_id, owner_user_id, kind, created_at_ms FROM face_profiles WHERE face_id = ?;
`, id).Scan(&p.ID, &p.OwnerUserID, &kind, &createdMs)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("GetProfile %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("GetProfile: %w", err)
	}
	p.Kind = face.Kind(kind)
	p.CreatedAt = fromMs(createdMs)

	samples, err := s.samples(ctx, `WHERE face_id = ?`, id)
	if err != nil {
		return p, err
	}
	p.Samples = samples[id]
	return p, nil
}

func (s *FaceProfileStore) DeleteProfile(ctx context.Context, id string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM face_profiles WHERE face_id = ?;`, id)
		if err != nil {
			return fmt.Errorf("DeleteProfile: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("DeleteProfile %s: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

func (s *FaceProfileStore) ListProfiles(ctx context.Context, match func(store.FaceProfileRecord) bool) ([]store.FaceProfileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT face_id, owner_user_id, kind, created_at_ms FROM face_profiles ORDER BY face_id;
`)
	if err != nil {
		return nil, fmt.Errorf("ListProfiles query: %w", err)
	}
	var profiles []store.FaceProfileRecord
	for rows.Next() {
		var (
			p         store.FaceProfileRecord
			kind      string
			createdMs int64
		)
		if err := rows.Scan(&p.ID, &p.OwnerUserID, &kind, &createdMs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ListProfiles scan: %w", err)
		}
		p.Kind = face.Kind(kind)
		p.CreatedAt = fromMs(createdMs)
		profiles = append(profiles, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListProfiles: %w", err)
	}

	samples, err := s.samples(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []store.FaceProfileRecord
	for _, p := range profiles {
		p.Samples = samples[p.ID]
		if match == nil || match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// samples loads face_samples rows grouped by profile and ordered by index.
// The single pooled connection means the profile rows must be closed
// before this runs.
func (s *FaceProfileStore) samples(ctx context.Context, where string, args ...any) (map[string][]store.FaceSampleRecord, error) {
	q := `SELECT face_id, idx, payload, captured_at_ms FROM face_samples ` +
		strings.TrimSpace(where) + ` ORDER BY face_id, idx;`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("face samples query: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]store.FaceSampleRecord)
	for rows.Next() {
		var (
			id, payload string
			idx         int
			capturedMs  int64
		)
		if err := rows.Scan(&id, &idx, &payload, &capturedMs); err != nil {
			return nil, fmt.Errorf("face samples scan: %w", err)
		}
		rec, err := decodeSample(payload)
		if err != nil {
			return nil, fmt.Errorf("face sample %s/%d: %w", id, idx, err)
		}
		rec.CapturedAt = fromMs(capturedMs)
		out[id] = append(out[id], rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("face samples: %w", err)
	}
	return out, nil
}
