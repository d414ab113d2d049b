package httpapi

import (
	"net/http"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

func visitorDetails(category, phone, name string) (service.VisitorDetails, error) {
	cat, err := types.ParseCategory(category)
	if err != nil {
		return service.VisitorDetails{}, err
	}
	return service.VisitorDetails{Category: cat, Phone: phone, VisitorName: name}, nil
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req types.CreateAccessRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := visitorDetails(req.Category, req.Phone, req.VisitorName)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec, err := s.machine.Create(r.Context(), req.ModuleID, d)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, mutation("access request created", rec))
}

func (s *Server) handleOpenRequest(w http.ResponseWriter, r *http.Request) {
	var req types.OpenAccessRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	rec, err := s.machine.Open(r.Context(), req.ModuleID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, mutation("access request opened", rec))
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitAccessRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := visitorDetails(req.Category, req.Phone, req.VisitorName)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec, err := s.machine.Submit(r.Context(), r.PathValue("id"), d)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, mutation("visitor details submitted", rec))
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	rec, err := s.machine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, requestView(rec))
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyOTPRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	rec, err := s.machine.VerifyOTP(r.Context(), r.PathValue("id"), req.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, mutation("otp verified", rec))
}

func (s *Server) handleVerifyFace(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyFaceRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	dec, err := s.coordinator.VerifyFace(r.Context(), r.PathValue("id"), probe(req.Sample))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := types.FaceDecisionResponse{
		Status:       "denied",
		Message:      "face verification failed",
		Verification: verificationResult(dec.Verification),
		Request:      requestView(dec.Request),
		Unlock:       unlockResult(dec.Unlock),
	}
	if dec.Request.AccessGranted {
		resp.Status = "success"
		resp.Message = "access granted"
	}
	s.respond(w, r, http.StatusOK, resp)
}
