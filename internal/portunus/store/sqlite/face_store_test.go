package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face/facetest"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	sqlitestore "github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store/sqlite"
)

func landmarkProfile(id string, created time.Time) store.FaceProfileRecord {
	p := store.FaceProfileRecord{ID: id, OwnerUserID: "u-" + id, Kind: face.KindLandmarks, CreatedAt: created}
	for _, lm := range facetest.Genuine() {
		p.Samples = append(p.Samples, store.FaceSampleRecord{Landmarks: lm})
	}
	return p
}

// ═══════════════════════════════════════════════════════════════════════════
// CreateProfile / GetProfile
// ═══════════════════════════════════════════════════════════════════════════

func TestFaceProfileStore_LandmarksSurviveStorage(t *testing.T) {
	conn := openTestDB(t)
	fs := sqlitestore.NewFaceProfileStore(conn, newTestWriter(t, conn))
	ctx := context.Background()
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	want := landmarkProfile("f1", now)
	if err := fs.CreateProfile(ctx, want); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	got, err := fs.GetProfile(ctx, "f1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if len(got.Samples) != len(want.Samples) {
		t.Fatalf("expected %d samples, got %d", len(want.Samples), len(got.Samples))
	}
	for i := range want.Samples {
		if len(got.Samples[i].Landmarks) != len(want.Samples[i].Landmarks) {
			t.Fatalf("sample %d: expected %d points, got %d", i, len(want.Samples[i].Landmarks), len(got.Samples[i].Landmarks))
		}
		if got.Samples[i].Landmarks[0] != want.Samples[i].Landmarks[0] {
			t.Errorf("sample %d: expected first point %v, got %v", i, want.Samples[i].Landmarks[0], got.Samples[i].Landmarks[0])
		}
		if !got.Samples[i].CapturedAt.Equal(now) {
			t.Errorf("sample %d: expected captured_at defaulted to profile time, got %v", i, got.Samples[i].CapturedAt)
		}
	}

	// The stored template must still verify the genuine face.
	v, err := face.Verify(face.Probe{Landmarks: facetest.Face()}, got.Template())
	if err != nil || !v.Verified {
		t.Errorf("expected stored profile to verify, got %+v (%v)", v, err)
	}
}

func TestFaceProfileStore_Embeddings(t *testing.T) {
	conn := openTestDB(t)
	fs := sqlitestore.NewFaceProfileStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	p := store.FaceProfileRecord{ID: "e1", OwnerUserID: "u1", Kind: face.KindEmbedding, CreatedAt: time.Now().UTC()}
	for _, e := range facetest.Embeddings(15, 0) {
		p.Samples = append(p.Samples, store.FaceSampleRecord{Embedding: e})
	}
	if err := fs.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	got, err := fs.GetProfile(ctx, "e1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Kind != face.KindEmbedding || len(got.Samples) != 15 {
		t.Fatalf("expected 15 embedding samples, got kind=%s n=%d", got.Kind, len(got.Samples))
	}
	if len(got.Samples[0].Embedding) != face.EmbeddingSize {
		t.Errorf("expected %d-d embedding, got %d", face.EmbeddingSize, len(got.Samples[0].Embedding))
	}
}

func TestFaceProfileStore_CreateProfile_DuplicateID(t *testing.T) {
	conn := openTestDB(t)
	fs := sqlitestore.NewFaceProfileStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	p := landmarkProfile("f1", time.Now().UTC())
	_ = fs.CreateProfile(ctx, p)
	if err := fs.CreateProfile(ctx, p); !errors.Is(err, store.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// DeleteProfile / ListProfiles
// ═══════════════════════════════════════════════════════════════════════════

func TestFaceProfileStore_DeleteCascadesSamples(t *testing.T) {
	conn := openTestDB(t)
	fs := sqlitestore.NewFaceProfileStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	_ = fs.CreateProfile(ctx, landmarkProfile("f1", time.Now().UTC()))
	if err := fs.DeleteProfile(ctx, "f1"); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM face_samples`).Scan(&n); err != nil {
		t.Fatalf("count samples: %v", err)
	}
	if n != 0 {
		t.Errorf("expected samples removed with profile, got %d", n)
	}
	if err := fs.DeleteProfile(ctx, "f1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFaceProfileStore_ListProfiles(t *testing.T) {
	conn := openTestDB(t)
	fs := sqlitestore.NewFaceProfileStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	for _, id := range []string{"f2", "f1", "f3"} {
		if err := fs.CreateProfile(ctx, landmarkProfile(id, time.Now().UTC())); err != nil {
			t.Fatalf("CreateProfile %s: %v", id, err)
		}
	}

	all, err := fs.ListProfiles(ctx, nil)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(all) != 3 || all[0].ID != "f1" {
		t.Fatalf("expected 3 profiles starting at f1, got %d", len(all))
	}
	for _, p := range all {
		if len(p.Samples) == 0 {
			t.Errorf("profile %s: expected samples loaded", p.ID)
		}
	}

	one, _ := fs.ListProfiles(ctx, func(p store.FaceProfileRecord) bool { return p.OwnerUserID == "u-f3" })
	if len(one) != 1 || one[0].ID != "f3" {
		t.Errorf("expected only f3, got %+v", one)
	}
}
