package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const operatorClaimsKey contextKey = "operatorClaims"

// OperatorRole is the role claim required on admin tokens.
const OperatorRole = "operator"

var errMissingBearer = errors.New("missing bearer token")

// OperatorClaims are the claims carried by admin endpoint tokens.
type OperatorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AdminJWT guards operator endpoints with an HS256 token that carries the operator role and an
// expiry. An empty secret disables the endpoints entirely.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusUnauthorized, "admin auth disabled")
				return
			}
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			claims := &OperatorClaims{}
			token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if claims.Role != OperatorRole {
				writeError(w, http.StatusForbidden, "operator role required")
				return
			}
			ctx := context.WithValue(r.Context(), operatorClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext returns the claims of the authenticated operator, if any.
func OperatorFromContext(ctx context.Context) (*OperatorClaims, bool) {
	claims, ok := ctx.Value(operatorClaimsKey).(*OperatorClaims)
	return claims, ok
}

// IssueOperatorToken signs an operator token for subject that expires after ttl.
func IssueOperatorToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("middleware: admin secret is empty")
	}
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: OperatorRole,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", errMissingBearer
	}
	return strings.TrimSpace(auth[len(prefix):]), nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}
