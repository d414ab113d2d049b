package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

const defaultEventLimit = 100

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	status := types.RequestStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	if status != "" && !status.Valid() {
		s.fail(w, r, fmt.Errorf("%w: status %q", service.ErrInvalidInput, status))
		return
	}

	recs, err := s.machine.List(r.Context(), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, requestList(recs))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	rec, err := s.machine.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("request approved",
		zap.String("request_id", rec.ID),
		zap.String("admin", adminSubject(r.Context())))
	s.respond(w, r, http.StatusOK, mutation("request approved", rec))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req types.RejectRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	rec, err := s.machine.Reject(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("request rejected",
		zap.String("request_id", rec.ID),
		zap.String("admin", adminSubject(r.Context())))
	s.respond(w, r, http.StatusOK, mutation("request rejected", rec))
}

// ── Users ────────────────────────────────────────────────────────────────────

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	var cat types.Category
	if q := strings.TrimSpace(r.URL.Query().Get("category")); q != "" {
		c, err := types.ParseCategory(q)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		cat = c
	}

	us, err := s.enrollment.ListUsers(r.Context(), cat)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, userList(us))
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateProfileRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.updateUser(w, r, req)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.enrollment.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Door control ─────────────────────────────────────────────────────────────

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req types.UnlockRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.DurationMs < 0 {
		s.fail(w, r, fmt.Errorf("%w: duration_ms must not be negative", service.ErrInvalidInput))
		return
	}

	res := s.coordinator.Unlock(r.Context(), req.ModuleID, req.DurationMs)
	s.logger.Info("manual unlock",
		zap.String("module_id", req.ModuleID),
		zap.String("admin", adminSubject(r.Context())),
		zap.Bool("simulated", res.Simulated))
	s.respond(w, r, http.StatusOK, unlockResult(&res))
}

// handleAdminVerifyFace checks a probe against the calling administrator's
// own profile.
func (s *Server) handleAdminVerifyFace(w http.ResponseWriter, r *http.Request) {
	sub := adminSubject(r.Context())
	if sub == "" {
		s.fail(w, r, fmt.Errorf("%w: token has no subject", ErrInvalidToken))
		return
	}
	s.verifyUserFace(w, r, sub)
}

func (s *Server) handleTempCode(w http.ResponseWriter, r *http.Request) {
	iss, err := s.codes.IssueTemp(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, types.TempCodeResponse{
		Code:      iss.Code,
		ExpiresAt: timestamp(iss.ExpiresAt),
	})
}

func (s *Server) handleRotateGroupCode(w http.ResponseWriter, r *http.Request) {
	var req types.RotateGroupCodeRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cat, err := types.ParseCategory(req.Category)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.codes.RotateGroupCode(r.Context(), cat, strings.TrimSpace(req.Code)); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, types.MutationResponse{
		Status:  "success",
		Message: fmt.Sprintf("%s code rotated", cat),
	})
}

// ── Door modules ─────────────────────────────────────────────────────────────

func (s *Server) handleCommissionModule(w http.ResponseWriter, r *http.Request) {
	var req types.CommissionModuleRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.doors.Commission(r.Context(), id, req.DisplayName); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("module commissioned by admin",
		zap.String("module_id", id), zap.String("admin", adminSubject(r.Context())))
	s.respond(w, r, http.StatusOK, types.MutationResponse{Status: "success", Message: "module commissioned"})
}

func (s *Server) handleRevokeModule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.doors.Revoke(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("module revoked by admin",
		zap.String("module_id", id), zap.String("admin", adminSubject(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

// ── Audit & housekeeping ─────────────────────────────────────────────────────

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			s.fail(w, r, fmt.Errorf("%w: limit must be a positive integer", service.ErrInvalidInput))
			return
		}
		limit = n
	}

	evs, err := s.events.ListEvents(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, eventList(evs))
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Compute(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, statisticsView(st))
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req types.CleanupRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	n, err := s.retention.Cleanup(r.Context(), req.Days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, types.CleanupResponse{
		Status:     "success",
		Message:    fmt.Sprintf("removed records older than %d days", req.Days),
		Requests:   n.Requests,
		OTPs:       n.OTPs,
		Heartbeats: n.Heartbeats,
	})
}
