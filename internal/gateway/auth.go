package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const operatorIssuer = "hermes"

// IssueToken signs an HS256 operator token for subject valid for ttl.
func IssueToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    operatorIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies a bearer token and returns its subject.
func ParseToken(secret []byte, raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(operatorIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	return claims.Subject, nil
}

// requireOperator rejects requests without a valid bearer token. A nil
// secret disables the check.
func (h *Handler) requireOperator(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if len(h.secret) == 0 {
			return next(c)
		}
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || raw == "" {
			return respondError(c, http.StatusUnauthorized, "missing bearer token")
		}
		sub, err := ParseToken(h.secret, raw)
		if err != nil {
			h.log.Warn().Err(err).Str("path", c.Path()).Msg("rejected token")
			return respondError(c, http.StatusUnauthorized, "invalid token")
		}
		c.Set("operator", sub)
		return next(c)
	}
}
