package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/audit"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/otp"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

const defaultTempTTL = 5 * time.Minute

// Codes is the administrator surface over keypad codes: the single-use
// temporary code and the per-category group codes.
type Codes struct {
	otp     *otp.Authority
	audit   audit.Appender
	tempTTL time.Duration
	logger  *zap.Logger
}

func NewCodes(auth *otp.Authority, app audit.Appender, tempTTL time.Duration, logger *zap.Logger) *Codes {
	if app == nil {
		app = audit.NewSync(logger)
	}
	if tempTTL <= 0 {
		tempTTL = defaultTempTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codes{otp: auth, audit: app, tempTTL: tempTTL, logger: logger}
}

// IssueTemp mints a new temporary keypad code, replacing any live one.
func (c *Codes) IssueTemp(ctx context.Context) (otp.Issued, error) {
	iss, err := c.otp.IssueTemp(ctx, c.tempTTL)
	if err != nil {
		return iss, fmt.Errorf("codes: issue temp: %w", err)
	}
	c.logger.Info("temp keypad code issued", zap.Time("expires_at", iss.ExpiresAt))
	return iss, nil
}

// RotateGroupCode replaces a category's shared keypad code. The plaintext
// is hashed immediately and never retrievable.
func (c *Codes) RotateGroupCode(ctx context.Context, cat types.Category, code string) error {
	err := c.otp.Groups().Set(cat, code)
	switch {
	case errors.Is(err, otp.ErrUnknownGroup), errors.Is(err, otp.ErrInvalidCode):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case err != nil:
		return fmt.Errorf("codes: rotate %s: %w", cat, err)
	}

	c.audit.Append(store.AccessEventRecord{
		Action:   "otp.group_rotated",
		Category: cat,
		Granted:  true,
		Reason:   "rotated_by_admin",
	})
	c.logger.Info("group code rotated", zap.String("category", string(cat)))
	return nil
}
