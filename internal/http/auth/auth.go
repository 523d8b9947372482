// Package auth authenticates API callers from HS256 bearer tokens whose subject
// is the caller's account address.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

var ErrUnauthenticated = errors.New("missing or invalid credentials")

type Config struct {
	Secret   string
	Issuer   string // checked when set
	Audience string // checked when set
}

type Authenticator struct {
	cfg    Config
	parser *jwt.Parser
}

func New(cfg Config) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}

	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Authenticator{cfg: cfg, parser: jwt.NewParser(opts...)}
}

// Authenticate validates a raw token and returns the normalized subject address.
func (a *Authenticator) Authenticate(raw string) (invoice.Address, error) {
	var claims jwt.RegisteredClaims

	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.Secret), nil
	})
	if err != nil {
		return "", errors.Join(ErrUnauthenticated, err)
	}

	addr, err := invoice.ParseAddress(claims.Subject)
	if err != nil {
		return "", errors.Join(ErrUnauthenticated, err)
	}

	return addr, nil
}

// Sign issues a token for addr valid for ttl. Used by operators and tests.
func (a *Authenticator) Sign(addr invoice.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   addr.String(),
		Issuer:    a.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	if a.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{a.cfg.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.Secret))
}

// Middleware rejects requests without a valid bearer token with 401 and puts
// the caller address on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			unauthorized(w, "bearer token required")
			return
		}

		addr, err := a.Authenticate(raw)
		if err != nil {
			slog.Debug("rejected bearer token", "error", err)
			unauthorized(w, ErrUnauthenticated.Error())

			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="blockbill"`)
	w.WriteHeader(http.StatusUnauthorized)

	if err := json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated", "message": msg}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type callerKey struct{}

func WithCaller(ctx context.Context, addr invoice.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// Caller returns the authenticated address placed on ctx by Middleware.
func Caller(ctx context.Context) (invoice.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(invoice.Address)
	return addr, ok
}
