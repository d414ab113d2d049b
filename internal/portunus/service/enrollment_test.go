package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face/facetest"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

// ── Users ────────────────────────────────────────────────────────────

func TestRegisterUser_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []service.UserDetails{
		{Name: "", Phone: "+1555", Category: types.CategoryFamily},
		{Name: "Ana", Phone: " ", Category: types.CategoryFamily},
		{Name: "Ana", Phone: "+1555", Category: "aliens"},
		{Name: "Ana", Phone: "+1555"},
	}
	for _, c := range cases {
		if _, err := h.enrollment.RegisterUser(ctx, c); !errors.Is(err, service.ErrInvalidInput) {
			t.Errorf("%+v: expected ErrInvalidInput, got %v", c, err)
		}
	}
}

func TestRegisterUser_PhoneIsUnique(t *testing.T) {
	h := newHarness(t)
	h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)

	_, err := h.enrollment.RegisterUser(context.Background(), service.UserDetails{Name: "Bo", Phone: "+15550002", Category: types.CategoryGuest})
	if !errors.Is(err, service.ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)

	name, cat, admin := "Ana Maria", types.CategoryFriends, true
	got, err := h.enrollment.UpdateUser(ctx, u.ID, service.UserPatch{Name: &name, Category: &cat, IsAdmin: &admin})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if got.Name != name || got.Category != cat || !got.IsAdmin || got.Phone != u.Phone {
		t.Fatalf("unexpected update result: %+v", got)
	}

	empty := ""
	if _, err := h.enrollment.UpdateUser(ctx, u.ID, service.UserPatch{Name: &empty}); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := h.enrollment.UpdateUser(ctx, "missing", service.UserPatch{Name: &name}); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListUsers_ByCategory(t *testing.T) {
	h := newHarness(t)
	h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	h.registerUser(t, "Bo", "+15550003", types.CategoryServants)
	h.registerUser(t, "Cy", "+15550004", types.CategoryFamily)

	fam, err := h.enrollment.ListUsers(context.Background(), types.CategoryFamily)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(fam) != 2 {
		t.Fatalf("expected 2 family users, got %d", len(fam))
	}
	all, _ := h.enrollment.ListUsers(context.Background(), "")
	if len(all) != 3 {
		t.Fatalf("expected 3 users, got %d", len(all))
	}
}

func TestDeleteUser_CascadesToProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	p := h.enroll(t, u.ID, facetest.Genuine()...)

	if err := h.enrollment.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := h.profiles.GetProfile(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected profile deleted, got %v", err)
	}
	if _, err := h.enrollment.GetUser(ctx, u.ID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected user deleted, got %v", err)
	}
	if !h.hasAction("user.deleted") {
		t.Errorf("expected user.deleted audit, got %v", h.actions())
	}
}

// ── Face profiles ────────────────────────────────────────────────────

func TestEnrollFace_RequiresMinimumSamples(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)

	_, err := h.enrollment.EnrollFace(ctx, u.ID, face.KindLandmarks, landmarkSamples(facetest.Face(), facetest.Scaled()))
	if !errors.Is(err, face.ErrInsufficientEnrollment) {
		t.Fatalf("expected ErrInsufficientEnrollment, got %v", err)
	}
	_, err = h.enrollment.EnrollFace(ctx, u.ID, face.KindEmbedding, embeddingSamples(facetest.Embeddings(14, 0)...))
	if !errors.Is(err, face.ErrInsufficientEnrollment) {
		t.Fatalf("expected ErrInsufficientEnrollment for 14 embeddings, got %v", err)
	}
	if _, err := h.enrollment.GetFace(ctx, u.ID); !errors.Is(err, service.ErrNoFaceProfile) {
		t.Fatalf("expected no profile after failed enrollments, got %v", err)
	}
}

func TestEnrollFace_RejectsBadSamples(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)

	sets := facetest.Genuine()
	sets[2] = sets[2][:10]
	if _, err := h.enrollment.EnrollFace(ctx, u.ID, face.KindLandmarks, landmarkSamples(sets...)); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for mismatched landmark counts, got %v", err)
	}

	vs := facetest.Embeddings(15, 0)
	vs[3] = vs[3][:64]
	if _, err := h.enrollment.EnrollFace(ctx, u.ID, face.KindEmbedding, embeddingSamples(vs...)); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short embedding, got %v", err)
	}

	if _, err := h.enrollment.EnrollFace(ctx, u.ID, "voiceprint", nil); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown kind, got %v", err)
	}
}

func TestEnrollFace_ReplacesPreviousProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)

	first := h.enroll(t, u.ID, facetest.Genuine()...)
	second := h.enroll(t, u.ID, facetest.ZigzagProfile()...)

	if first.ID == second.ID {
		t.Fatal("expected a new profile id")
	}
	if _, err := h.profiles.GetProfile(ctx, first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected old profile deleted, got %v", err)
	}
	got, err := h.enrollment.GetFace(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetFace: %v", err)
	}
	if got.ID != second.ID || len(got.Samples) != 5 {
		t.Fatalf("expected second profile with 5 samples, got %s with %d", got.ID, len(got.Samples))
	}
}

func TestDeleteFace_ClearsRef(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	p := h.enroll(t, u.ID, facetest.Genuine()...)

	if err := h.enrollment.DeleteFace(ctx, u.ID); err != nil {
		t.Fatalf("DeleteFace: %v", err)
	}
	got, _ := h.enrollment.GetUser(ctx, u.ID)
	if got.FaceProfileRef != "" {
		t.Fatalf("expected ref cleared, got %q", got.FaceProfileRef)
	}
	if _, err := h.profiles.GetProfile(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected profile deleted, got %v", err)
	}
	if err := h.enrollment.DeleteFace(ctx, u.ID); !errors.Is(err, service.ErrNoFaceProfile) {
		t.Fatalf("expected ErrNoFaceProfile, got %v", err)
	}
}

func TestGetFace_RepairsDanglingRef(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	p := h.enroll(t, u.ID, facetest.Genuine()...)
	_ = h.profiles.DeleteProfile(ctx, p.ID)

	if _, err := h.enrollment.GetFace(ctx, u.ID); !errors.Is(err, service.ErrNoFaceProfile) {
		t.Fatalf("expected ErrNoFaceProfile, got %v", err)
	}
	got, _ := h.enrollment.GetUser(ctx, u.ID)
	if got.FaceProfileRef != "" {
		t.Fatalf("expected dangling ref cleared, got %q", got.FaceProfileRef)
	}
}

func TestVerifyUserFace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.registerUser(t, "Ana", "+15550002", types.CategoryFamily)
	h.enroll(t, u.ID, append(facetest.Genuine(), facetest.Impostors()...)...)

	v, err := h.enrollment.VerifyUserFace(ctx, u.ID, face.Probe{Landmarks: facetest.Face()})
	if err != nil {
		t.Fatalf("VerifyUserFace: %v", err)
	}
	if !v.Verified || v.MatchCount != 6 || v.TotalSamples != 8 {
		t.Fatalf("expected verified 6/8, got %+v", v)
	}

	v, err = h.enrollment.VerifyUserFace(ctx, u.ID, face.Probe{Landmarks: facetest.Zigzag()})
	if err != nil {
		t.Fatalf("VerifyUserFace: %v", err)
	}
	if v.Verified {
		t.Fatalf("expected zigzag probe rejected, got %+v", v)
	}

	other := h.registerUser(t, "Bo", "+15550003", types.CategoryGuest)
	if _, err := h.enrollment.VerifyUserFace(ctx, other.ID, face.Probe{Landmarks: facetest.Face()}); !errors.Is(err, service.ErrNoFaceProfile) {
		t.Fatalf("expected ErrNoFaceProfile, got %v", err)
	}
}
