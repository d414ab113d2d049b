package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNotAdmin     = errors.New("admin role required")
	ErrNotOwner     = errors.New("token does not belong to this user")
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// DefaultUserTokenTTL is how long a self-service token from registration
// stays valid.
const DefaultUserTokenTTL = 7 * 24 * time.Hour

// AuthConfig verifies bearer tokens (HS256). Admin tokens reach the admin
// API; user tokens reach only their own /v1/users/{id} routes.
type AuthConfig struct {
	Secret       string
	Issuer       string
	UserTokenTTL time.Duration
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *tokenClaims) admin() bool { return c.Role == RoleAdmin }

// MintAdminToken signs an admin token for subject, the administrator's
// user id.
func MintAdminToken(cfg AuthConfig, subject string, ttl time.Duration) (string, error) {
	return mint(cfg, RoleAdmin, subject, ttl)
}

// MintUserToken signs a self-service token for userID. A zero ttl uses
// cfg.UserTokenTTL, then DefaultUserTokenTTL.
func MintUserToken(cfg AuthConfig, userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = cfg.UserTokenTTL
	}
	if ttl <= 0 {
		ttl = DefaultUserTokenTTL
	}
	return mint(cfg, RoleUser, userID, ttl)
}

func mint(cfg AuthConfig, role, subject string, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("mint %s token: empty secret", role)
	}
	if subject == "" {
		return "", fmt.Errorf("mint %s token: empty subject", role)
	}
	now := time.Now().UTC()
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

// verify checks signature, expiry and issuer. Unknown roles are rejected
// here; callers decide which of the known roles they accept.
func (a AuthConfig) verify(raw string) (*tokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}

	var c tokenClaims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return []byte(a.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	switch c.Role {
	case RoleAdmin:
	case RoleUser:
		if c.Subject == "" {
			return nil, fmt.Errorf("%w: user token without subject", ErrInvalidToken)
		}
	default:
		return nil, ErrNotAdmin
	}
	return &c, nil
}

type claimsKey struct{}

func requestClaims(ctx context.Context) *tokenClaims {
	c, _ := ctx.Value(claimsKey{}).(*tokenClaims)
	return c
}

// adminSubject returns the authenticated administrator's user id.
func adminSubject(ctx context.Context) string {
	if c := requestClaims(ctx); c != nil && c.admin() {
		return c.Subject
	}
	return ""
}

// bearer returns the verified claims on r, or nil with no error when the
// request carries no Authorization header at all.
func (s *Server) bearer(r *http.Request) (*tokenClaims, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return nil, nil
	}
	raw, ok := strings.CutPrefix(h, "Bearer ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return nil, ErrMissingToken
	}
	return s.auth.verify(raw)
}

func (s *Server) authenticate(r *http.Request) (*tokenClaims, error) {
	c, err := s.bearer(r)
	if err == nil && c == nil {
		err = ErrMissingToken
	}
	return c, err
}

// requireAdmin rejects requests without a valid admin bearer token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.authenticate(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !c.admin() {
			s.fail(w, r, ErrNotAdmin)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, c)))
	}
}

// requireSelf admits an admin token, or a user token whose subject is the
// {id} path segment.
func (s *Server) requireSelf(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.authenticate(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !c.admin() && c.Subject != r.PathValue("id") {
			s.fail(w, r, ErrNotOwner)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, c)))
	}
}
