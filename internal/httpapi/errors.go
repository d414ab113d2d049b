package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/otp"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorTable is checked in order; the first sentinel err wraps wins.
var errorTable = []errorMapping{
	{errBadBody, http.StatusBadRequest, "bad_request"},
	{service.ErrInvalidModuleID, http.StatusBadRequest, "invalid_module_id"},
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{types.ErrInvalidCategory, http.StatusBadRequest, "invalid_category"},
	{otp.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{face.ErrDegenerateInput, http.StatusBadRequest, "degenerate_input"},

	{ErrMissingToken, http.StatusUnauthorized, "unauthorized"},
	{ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
	{ErrNotAdmin, http.StatusForbidden, "forbidden"},
	{ErrNotOwner, http.StatusForbidden, "forbidden"},

	{service.ErrNoFaceProfile, http.StatusNotFound, "no_face_profile"},
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{otp.ErrNotFound, http.StatusNotFound, "otp_not_found"},

	{service.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{service.ErrConflict, http.StatusConflict, "conflict"},
	{service.ErrPhoneTaken, http.StatusConflict, "phone_taken"},
	{otp.ErrAlreadyUsed, http.StatusConflict, "otp_already_used"},

	{service.ErrRequestExpired, http.StatusGone, "request_expired"},
	{otp.ErrExpired, http.StatusGone, "otp_expired"},

	{otp.ErrMismatch, http.StatusUnprocessableEntity, "otp_mismatch"},
	{face.ErrInsufficientEnrollment, http.StatusUnprocessableEntity, "insufficient_enrollment"},

	{service.ErrKeypadLocked, http.StatusTooManyRequests, "too_many_attempts"},
}

func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// fail maps err onto a status and error body. Unclassified errors are
// logged and hidden from the caller.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "unexpected server error"
	}
	writeError(w, status, code, msg)
}

// respond writes v as JSON, or as a protobuf Struct when the caller
// negotiated protobuf.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if !wantsProtobuf(r) {
		writeJSON(w, status, v)
		return
	}
	data, err := encodeProto(v)
	if err != nil {
		s.logger.Error("protobuf encode failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeProto(w, status, data)
}
