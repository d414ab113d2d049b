package service

import (
	"context"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

// Stats is a point-in-time summary for the admin dashboard.
type Stats struct {
	TotalUsers       int
	UsersByCategory  map[types.Category]int
	EnrolledFaces    int
	TotalRequests    int
	RequestsByStatus map[types.RequestStatus]int
	PendingApprovals int
	GrantedRequests  int
	DeniedRequests   int
	GeneratedAt      time.Time
}

type Statistics struct {
	users    store.UserStore
	profiles store.FaceProfileStore
	machine  *RequestMachine
	now      func() time.Time
}

func NewStatistics(us store.UserStore, ps store.FaceProfileStore, m *RequestMachine) *Statistics {
	return &Statistics{users: us, profiles: ps, machine: m, now: utcNow}
}

// Compute reads every user, profile and request. Requests are listed
// through the machine so lapsed ones count as expired.
func (s *Statistics) Compute(ctx context.Context) (Stats, error) {
	users, err := s.users.ListUsers(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: users: %w", err)
	}
	profiles, err := s.profiles.ListProfiles(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: profiles: %w", err)
	}
	reqs, err := s.machine.List(ctx, "")
	if err != nil {
		return Stats{}, fmt.Errorf("stats: requests: %w", err)
	}

	st := Stats{
		TotalUsers:       len(users),
		UsersByCategory:  make(map[types.Category]int),
		EnrolledFaces:    len(profiles),
		TotalRequests:    len(reqs),
		RequestsByStatus: make(map[types.RequestStatus]int),
		GeneratedAt:      s.now(),
	}
	for _, u := range users {
		st.UsersByCategory[u.Category]++
	}
	for _, r := range reqs {
		st.RequestsByStatus[r.Status]++
		switch r.Status {
		case types.StatusPendingAdminApproval:
			st.PendingApprovals++
		case types.StatusAccessGranted:
			st.GrantedRequests++
		case types.StatusDenied, types.StatusRejected, types.StatusFaceVerificationFailed:
			st.DeniedRequests++
		}
	}
	return st, nil
}
