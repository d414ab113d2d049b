package httpapi

import (
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/actuator"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/face"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ── Requests ─────────────────────────────────────────────────────────────────

func requestView(rec store.AccessRequestRecord) *types.AccessRequestView {
	v := &types.AccessRequestView{
		RequestID:     rec.ID,
		ModuleID:      rec.ModuleID,
		Category:      string(rec.Category),
		Phone:         rec.Phone,
		VisitorName:   rec.VisitorName,
		Status:        string(rec.Status),
		OTPVerified:   rec.OTPVerified,
		FaceVerified:  rec.FaceVerified,
		AccessGranted: rec.AccessGranted,
		Reason:        rec.Reason,
		ExpiresAt:     timestamp(rec.ExpiresAt),
		Confidence:    rec.Confidence,
		CreatedAt:     timestamp(rec.CreatedAt),
		UpdatedAt:     timestamp(rec.UpdatedAt),
	}
	if rec.Status == types.StatusOTPIssued {
		v.OTPCode = rec.OTPCode
	}
	if rec.AccessTime != nil {
		v.AccessTime = timestamp(*rec.AccessTime)
	}
	return v
}

func requestList(recs []store.AccessRequestRecord) types.AccessRequestList {
	out := types.AccessRequestList{Requests: make([]types.AccessRequestView, 0, len(recs))}
	for _, r := range recs {
		out.Requests = append(out.Requests, *requestView(r))
	}
	return out
}

func mutation(msg string, rec store.AccessRequestRecord) types.MutationResponse {
	return types.MutationResponse{Status: "success", Message: msg, Request: requestView(rec)}
}

// ── Users & faces ────────────────────────────────────────────────────────────

func userView(u store.UserRecord) types.UserView {
	return types.UserView{
		UserID:    u.ID,
		Name:      u.Name,
		Phone:     u.Phone,
		Category:  string(u.Category),
		FaceID:    u.FaceProfileRef,
		IsAdmin:   u.IsAdmin,
		CreatedAt: timestamp(u.CreatedAt),
		UpdatedAt: timestamp(u.UpdatedAt),
	}
}

func userList(us []store.UserRecord) types.UserList {
	out := types.UserList{Users: make([]types.UserView, 0, len(us))}
	for _, u := range us {
		out.Users = append(out.Users, userView(u))
	}
	return out
}

func userPatch(req types.UpdateProfileRequest) (service.UserPatch, error) {
	p := service.UserPatch{Name: req.Name, Phone: req.Phone, IsAdmin: req.IsAdmin}
	if req.Category != nil {
		cat, err := types.ParseCategory(*req.Category)
		if err != nil {
			return p, err
		}
		p.Category = &cat
	}
	return p, nil
}

func faceProfileView(p store.FaceProfileRecord) types.FaceProfileView {
	return types.FaceProfileView{
		FaceID:      p.ID,
		UserID:      p.OwnerUserID,
		Kind:        string(p.Kind),
		SampleCount: len(p.Samples),
		CreatedAt:   timestamp(p.CreatedAt),
	}
}

func sampleRecords(in []types.FaceSample) []store.FaceSampleRecord {
	out := make([]store.FaceSampleRecord, len(in))
	for i, s := range in {
		out[i] = store.FaceSampleRecord{Embedding: s.Descriptor}
		if len(s.Landmarks) > 0 {
			out[i].Landmarks = face.FromPairs(s.Landmarks)
		}
	}
	return out
}

func probe(s types.FaceSample) face.Probe {
	p := face.Probe{Embedding: s.Descriptor}
	if len(s.Landmarks) > 0 {
		p.Landmarks = face.FromPairs(s.Landmarks)
	}
	return p
}

func verificationResult(v face.Verification) types.VerificationResult {
	return types.VerificationResult{
		Verified:          v.Verified,
		Confidence:        v.Confidence,
		AverageConfidence: v.AverageConfidence,
		MatchCount:        v.MatchCount,
		TotalSamples:      v.TotalSamples,
		Threshold:         v.Threshold,
		MinMatches:        v.MinMatches,
		Reason:            string(v.Reason),
	}
}

func unlockResult(r *actuator.Result) *types.UnlockResult {
	if r == nil {
		return nil
	}
	return &types.UnlockResult{OK: r.OK, Simulated: r.Simulated, Message: r.Message}
}

// ── Admin ────────────────────────────────────────────────────────────────────

func eventList(evs []store.AccessEventRecord) types.AccessEventList {
	out := types.AccessEventList{Events: make([]types.AccessEventView, 0, len(evs))}
	for _, e := range evs {
		out.Events = append(out.Events, types.AccessEventView{
			EventID:    e.ID,
			RequestID:  e.RequestID,
			ModuleID:   e.ModuleID,
			Action:     e.Action,
			Category:   string(e.Category),
			Granted:    e.Granted,
			Reason:     e.Reason,
			Confidence: e.Confidence,
			Simulated:  e.Simulated,
			DecidedAt:  timestamp(e.DecidedAt),
		})
	}
	return out
}

func statisticsView(st service.Stats) types.Statistics {
	out := types.Statistics{
		TotalUsers:       st.TotalUsers,
		UsersByCategory:  make(map[string]int, len(st.UsersByCategory)),
		EnrolledFaces:    st.EnrolledFaces,
		TotalRequests:    st.TotalRequests,
		RequestsByStatus: make(map[string]int, len(st.RequestsByStatus)),
		PendingApprovals: st.PendingApprovals,
		GrantedRequests:  st.GrantedRequests,
		DeniedRequests:   st.DeniedRequests,
		GeneratedAt:      timestamp(st.GeneratedAt),
	}
	for c, n := range st.UsersByCategory {
		out.UsersByCategory[string(c)] = n
	}
	for s, n := range st.RequestsByStatus {
		out.RequestsByStatus[string(s)] = n
	}
	return out
}
