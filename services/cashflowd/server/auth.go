package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cashflow/crypto"
)

type contextKey string

const contextKeyCaller contextKey = "caller"

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	HMACSecret    string
	Issuer        string
	Audience      string
	AdminSubjects []string
	ClockSkew     time.Duration
	Now           func() time.Time
}

// Caller is the authenticated identity attached to a request.
type Caller struct {
	Address crypto.Address
	Subject string
	Admin   bool
}

// Authenticator verifies HMAC signed JWTs whose subject is a ledger address.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
	admins   map[string]struct{}
	now      func() time.Time
}

// NewAuthenticator validates the configuration and builds an authenticator.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if len(secret) < 32 {
		return nil, errors.New("auth: hmac secret must be at least 32 characters")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	admins := make(map[string]struct{}, len(cfg.AdminSubjects))
	for _, subject := range cfg.AdminSubjects {
		if trimmed := strings.TrimSpace(subject); trimmed != "" {
			admins[trimmed] = struct{}{}
		}
	}
	return &Authenticator{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		skew:     cfg.ClockSkew,
		admins:   admins,
		now:      now,
	}, nil
}

// Verify parses and validates a raw token.
func (a *Authenticator) Verify(raw string) (*Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.skew),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return a.secret, nil }, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("auth: subject: %w", err)
	}
	subject = strings.TrimSpace(subject)
	addr, err := crypto.ParseAddress(subject)
	if err != nil {
		return nil, fmt.Errorf("auth: subject is not an address: %w", err)
	}
	if addr.IsZero() {
		return nil, errors.New("auth: zero address subject")
	}
	_, admin := a.admins[subject]
	if !admin {
		_, admin = a.admins[addr.String()]
	}
	return &Caller{Address: addr, Subject: subject, Admin: admin}, nil
}

// Middleware requires a valid bearer token and stores the caller in the
// request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := strings.TrimSpace(r.Header.Get("Authorization"))
		if authz == "" {
			writeError(w, http.StatusUnauthorized, "Unauthenticated", "missing authorization")
			return
		}
		scheme, token, found := strings.Cut(authz, " ")
		if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "Unauthenticated", "invalid authorization scheme")
			return
		}
		caller, err := a.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthenticated", "invalid authorization token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyCaller, caller)))
	})
}

// RequireAdmin rejects callers outside the admin subject allowlist. It must
// run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok || !caller.Admin {
			writeError(w, http.StatusForbidden, "Forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(*Caller)
	return caller, ok && caller != nil
}
