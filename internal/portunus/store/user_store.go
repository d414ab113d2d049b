package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

// UserRecord is a registered person. FaceProfileRef names a face profile
// by id without owning it; an empty ref means no enrolled face.
type UserRecord struct {
	ID             string
	Name           string
	Phone          string
	Category       types.Category
	FaceProfileRef string
	IsAdmin        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (UserRecord, error)
	FindUserByPhone(ctx context.Context, phone string) (UserRecord, error)
	// PutUser inserts or replaces a user. A phone already held by another
	// user yields ErrExists.
	PutUser(ctx context.Context, rec UserRecord) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context, match func(UserRecord) bool) ([]UserRecord, error)
}
