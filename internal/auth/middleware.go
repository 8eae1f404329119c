package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

type Claims struct {
	Email      string   `json:"email"`
	Name       string   `json:"name,omitempty"`
	TenantID   string   `json:"tenant_id,omitempty"`
	Role       string   `json:"role"`
	Perms      []string `json:"perms,omitempty"`
	Privileged bool     `json:"privileged,omitempty"`
	SessionID  string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into the request's caller.
func (c *Claims) Actor() (*tenant.Actor, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	kind := tenant.ActorKind(c.Role)
	switch kind {
	case tenant.KindOperator, tenant.KindStaff, tenant.KindClient:
	default:
		return nil, fmt.Errorf("unknown role %q", c.Role)
	}
	a := &tenant.Actor{
		ID:          id,
		Name:        c.Name,
		Email:       c.Email,
		Kind:        kind,
		Permissions: c.Perms,
		Privileged:  c.Privileged && kind == tenant.KindOperator,
		SessionID:   c.SessionID,
	}
	if c.TenantID != "" {
		if a.HomeTenantID, err = uuid.Parse(c.TenantID); err != nil {
			return nil, fmt.Errorf("invalid tenant_id: %w", err)
		}
	}
	return a, nil
}

// OverrideSource looks up the tenant a session switched to.
type OverrideSource interface {
	TenantOverride(ctx context.Context, sessionID string) (uuid.UUID, error)
}

type JWTMiddleware struct {
	secret   []byte
	issuer   string
	tenants  *tenant.Service
	sessions OverrideSource
}

// NewJWTMiddleware verifies HMAC bearer tokens. sessions may be nil, in
// which case every request runs under the credential's home tenant.
func NewJWTMiddleware(secret, issuer string, ts *tenant.Service, sessions OverrideSource) *JWTMiddleware {
	return &JWTMiddleware{
		secret:   []byte(secret),
		issuer:   issuer,
		tenants:  ts,
		sessions: sessions,
	}
}

func (m *JWTMiddleware) parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *JWTMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims, err := m.parse(tokenStr)
		if errors.Is(err, jwt.ErrTokenExpired) {
			writeError(w, http.StatusUnauthorized, "token expired")
			return
		}
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		actor, err := claims.Actor()
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := r.Context()
		override := uuid.Nil
		if m.sessions != nil && actor.Privileged {
			if override, err = m.sessions.TenantOverride(ctx, actor.SessionID); err != nil {
				slog.Error("session lookup failed", "sid", actor.SessionID, "error", err)
				writeError(w, http.StatusServiceUnavailable, "session store unavailable")
				return
			}
		}

		ctx, err = m.tenants.Scope(ctx, actor, override)
		if err != nil {
			status := http.StatusInternalServerError
			if k := apperr.KindOf(err); k != "" {
				status = apperr.Status(k)
			}
			writeError(w, status, err.Error())
			return
		}
		ctx = context.WithValue(ctx, claimsKey, claims)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ctxKey string

const claimsKey ctxKey = "claims"

func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Mint signs a token for a. It backs the staffctl token command and
// tests.
func Mint(secret, issuer string, ttl time.Duration, a *tenant.Actor) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email:      a.Email,
		Name:       a.Name,
		Role:       string(a.Kind),
		Perms:      a.Permissions,
		Privileged: a.Privileged,
		SessionID:  a.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if a.HomeTenantID != uuid.Nil {
		claims.TenantID = a.HomeTenantID.String()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}
