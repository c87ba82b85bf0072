// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/maciejossss/spikss-sub002/internal/auth"
)

// JWTAuth authenticates sync and pending-change requests. Session mechanics
// live outside this module; tokens are issued by the account system and only
// validated here.
type JWTAuth struct {
	secret []byte
	logger *slog.Logger
}

// NewJWTAuth creates a JWT authenticator.
func NewJWTAuth(secret string, logger *slog.Logger) *JWTAuth {
	if logger == nil {
		logger = slog.Default()
	}
	return &JWTAuth{secret: []byte(secret), logger: logger}
}

// Claims carries the actor (sub) and the originating device (did). The
// device id distinguishes the desktop pusher from mobile clients in logs.
type Claims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// GenerateToken issues a token for the given actor and device. Used by the
// account system and by tests.
func (j *JWTAuth) GenerateToken(actorID, deviceID string, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "fieldsync",
			Subject:   actorID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken parses and validates a token string.
func (j *JWTAuth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub claim")
	}
	if claims.DeviceID == "" {
		return nil, fmt.Errorf("missing did claim")
	}
	return claims, nil
}

// Middleware enforces a valid bearer token and stores the actor and device
// identity in the request context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if header == "" || tokenString == header {
			writeJSONError(w, http.StatusUnauthorized, "authentication_failed", "bearer token required")
			return
		}

		claims, err := j.ValidateToken(tokenString)
		if err != nil {
			j.logger.Debug("JWT validation failed", "error", err)
			writeJSONError(w, http.StatusUnauthorized, "authentication_failed", "invalid token")
			return
		}

		ctx := auth.WithActor(r.Context(), claims.Subject, claims.DeviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
