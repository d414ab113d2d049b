package httpapi

import (
	"fmt"
	"net/http"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

// handleRegisterUser is open to anyone, but without an admin token the
// new user is always a guest. Categories that share a keypad code are
// granted by administrators only.
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	caller, err := s.bearer(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req types.RegisterUserRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	cat := types.CategoryGuest
	if req.Category != "" {
		c, err := types.ParseCategory(req.Category)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if c != types.CategoryUnknown {
			cat = c
		}
	}
	if cat != types.CategoryGuest && (caller == nil || !caller.admin()) {
		s.fail(w, r, fmt.Errorf("%w: category %s is assigned by administrators", ErrNotAdmin, cat))
		return
	}

	u, err := s.enrollment.RegisterUser(r.Context(), service.UserDetails{
		Name:     req.Name,
		Phone:    req.Phone,
		Category: cat,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := MintUserToken(s.auth, u.ID, 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, types.RegisteredUserView{UserView: userView(u), Token: token})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.enrollment.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, userView(u))
}

// handleUpdateProfile is the self-service edit. Category and is_admin go
// through PUT /v1/admin/users/{id}.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateProfileRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.IsAdmin != nil {
		s.fail(w, r, fmt.Errorf("%w: is_admin is set by administrators", service.ErrInvalidInput))
		return
	}
	if req.Category != nil {
		s.fail(w, r, fmt.Errorf("%w: category is set by administrators", service.ErrInvalidInput))
		return
	}
	s.updateUser(w, r, req)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, req types.UpdateProfileRequest) {
	p, err := userPatch(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.enrollment.UpdateUser(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, userView(u))
}

// ── Faces ────────────────────────────────────────────────────────────────────

func (s *Server) handleEnrollFace(w http.ResponseWriter, r *http.Request) {
	var req types.EnrollFaceRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	p, err := s.enrollment.EnrollFace(r.Context(), r.PathValue("id"), face.Kind(req.Kind), sampleRecords(req.Samples))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, types.EnrollFaceResponse{
		Status:      "success",
		Message:     "face enrolled",
		FaceID:      p.ID,
		Kind:        string(p.Kind),
		SampleCount: len(p.Samples),
	})
}

func (s *Server) handleGetFace(w http.ResponseWriter, r *http.Request) {
	p, err := s.enrollment.GetFace(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, faceProfileView(p))
}

func (s *Server) handleDeleteFace(w http.ResponseWriter, r *http.Request) {
	if err := s.enrollment.DeleteFace(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerifyUserFace(w http.ResponseWriter, r *http.Request) {
	s.verifyUserFace(w, r, r.PathValue("id"))
}

func (s *Server) verifyUserFace(w http.ResponseWriter, r *http.Request, userID string) {
	var req types.VerifyFaceRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	v, err := s.enrollment.VerifyUserFace(r.Context(), userID, probe(req.Sample))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, verificationResult(v))
}
