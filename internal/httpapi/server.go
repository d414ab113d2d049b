// Package httpapi is the gate's HTTP surface: the visitor request flow,
// door-module endpoints, user and face enrollment, and the admin API
// behind bearer-token auth. Bodies are JSON, or protobuf-encoded
// google.protobuf.Struct for door modules that send application/x-protobuf.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

type Dependencies struct {
	Logger      *zap.Logger
	Addr        string
	Auth        AuthConfig
	Heartbeats  *service.HeartbeatService
	Doors       *service.DoorRegistry
	Machine     *service.RequestMachine
	Coordinator *service.Coordinator
	Enrollment  *service.Enrollment
	Codes       *service.Codes
	Statistics  *service.Statistics
	Retention   *service.Retention
	Events      store.AccessEventStore
}

type Server struct {
	httpServer  *http.Server
	logger      *zap.Logger
	mux         *http.ServeMux
	auth        AuthConfig
	heartbeats  *service.HeartbeatService
	doors       *service.DoorRegistry
	machine     *service.RequestMachine
	coordinator *service.Coordinator
	enrollment  *service.Enrollment
	codes       *service.Codes
	stats       *service.Statistics
	retention   *service.Retention
	events      store.AccessEventStore
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		logger:      d.Logger,
		mux:         mux,
		auth:        d.Auth,
		heartbeats:  d.Heartbeats,
		doors:       d.Doors,
		machine:     d.Machine,
		coordinator: d.Coordinator,
		enrollment:  d.Enrollment,
		codes:       d.Codes,
		stats:       d.Statistics,
		retention:   d.Retention,
		events:      d.Events,
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           loggingMiddleware(d.Logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Door modules
	s.mux.HandleFunc("POST /v1/heartbeat", s.handleHeartbeat)
	s.mux.HandleFunc("POST /v1/door/keypad", s.handleKeypad)
	s.mux.HandleFunc("POST /v1/door/identify", s.handleIdentify)

	// Visitor request flow
	s.mux.HandleFunc("POST /v1/access/requests", s.handleCreateRequest)
	s.mux.HandleFunc("POST /v1/access/requests/open", s.handleOpenRequest)
	s.mux.HandleFunc("GET /v1/access/requests/{id}", s.handleGetRequest)
	s.mux.HandleFunc("POST /v1/access/requests/{id}/submit", s.handleSubmitRequest)
	s.mux.HandleFunc("POST /v1/access/requests/{id}/verify-otp", s.handleVerifyOTP)
	s.mux.HandleFunc("POST /v1/access/requests/{id}/verify-face", s.handleVerifyFace)

	// Users and faces
	s.mux.HandleFunc("POST /v1/users", s.handleRegisterUser)
	s.mux.HandleFunc("GET /v1/users/{id}", s.requireSelf(s.handleGetUser))
	s.mux.HandleFunc("PATCH /v1/users/{id}/profile", s.requireSelf(s.handleUpdateProfile))
	s.mux.HandleFunc("POST /v1/users/{id}/face", s.requireSelf(s.handleEnrollFace))
	s.mux.HandleFunc("GET /v1/users/{id}/face", s.requireSelf(s.handleGetFace))
	s.mux.HandleFunc("DELETE /v1/users/{id}/face", s.requireSelf(s.handleDeleteFace))
	s.mux.HandleFunc("POST /v1/users/{id}/face/verify", s.requireSelf(s.handleVerifyUserFace))

	// Admin
	s.mux.HandleFunc("GET /v1/admin/requests", s.requireAdmin(s.handleListRequests))
	s.mux.HandleFunc("POST /v1/admin/requests/{id}/approve", s.requireAdmin(s.handleApprove))
	s.mux.HandleFunc("POST /v1/admin/requests/{id}/reject", s.requireAdmin(s.handleReject))
	s.mux.HandleFunc("GET /v1/admin/users", s.requireAdmin(s.handleListUsers))
	s.mux.HandleFunc("PUT /v1/admin/users/{id}", s.requireAdmin(s.handleAdminUpdateUser))
	s.mux.HandleFunc("DELETE /v1/admin/users/{id}", s.requireAdmin(s.handleDeleteUser))
	s.mux.HandleFunc("POST /v1/admin/unlock", s.requireAdmin(s.handleUnlock))
	s.mux.HandleFunc("POST /v1/admin/verify-face", s.requireAdmin(s.handleAdminVerifyFace))
	s.mux.HandleFunc("GET /v1/admin/events", s.requireAdmin(s.handleListEvents))
	s.mux.HandleFunc("GET /v1/admin/statistics", s.requireAdmin(s.handleStatistics))
	s.mux.HandleFunc("POST /v1/admin/cleanup", s.requireAdmin(s.handleCleanup))
	s.mux.HandleFunc("POST /v1/admin/temp-code", s.requireAdmin(s.handleTempCode))
	s.mux.HandleFunc("PUT /v1/admin/group-codes", s.requireAdmin(s.handleRotateGroupCode))
	s.mux.HandleFunc("POST /v1/admin/modules/{id}/commission", s.requireAdmin(s.handleCommissionModule))
	s.mux.HandleFunc("DELETE /v1/admin/modules/{id}", s.requireAdmin(s.handleRevokeModule))
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Door modules ─────────────────────────────────────────────────────────────

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req types.HeartbeatRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	resp, err := s.heartbeats.Record(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleKeypad(w http.ResponseWriter, r *http.Request) {
	var req types.KeypadRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.coordinator.Keypad(r.Context(), req.ModuleID, req.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := types.KeypadResponse{
		Verified: res.Verified,
		Scope:    res.Scope,
		Message:  "code rejected",
		Unlock:   unlockResult(res.Unlock),
	}
	if res.Verified {
		resp.Message = "code accepted"
	}
	s.respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var req types.IdentifyRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.coordinator.Identify(r.Context(), req.ModuleID, probe(req.Sample))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := types.IdentifyResponse{
		Identified:   res.Identified,
		Verification: verificationResult(res.Verification),
		Unlock:       unlockResult(res.Unlock),
	}
	if res.Identified {
		resp.UserID = res.User.ID
		resp.Name = res.User.Name
		resp.Category = string(res.User.Category)
	}
	s.respond(w, r, http.StatusOK, resp)
}
