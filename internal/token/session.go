package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avoynich/wsprovd/internal/model"
)

// Claims represents session token claims binding a device to a workspace.
type Claims struct {
	jwt.RegisteredClaims
	WorkspaceID uuid.UUID `json:"wid"`
	DeviceID    uuid.UUID `json:"device_id"`
	TokenType   string    `json:"typ"`
}

// Session implements SessionTokenManager backed by symmetric HMAC.
type Session struct {
	secretKey string
}

// NewSession creates a session token manager with the provided secret key.
func NewSession(secretKey string) model.SessionTokenManager {
	return &Session{secretKey: secretKey}
}

const (
	sessionTTL  = 90 * 24 * time.Hour
	typeSession = "session"
)

// Issue creates a session token for the given workspace and device.
func (s *Session) Issue(wid, deviceID uuid.UUID) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
		WorkspaceID: wid,
		DeviceID:    deviceID,
		TokenType:   typeSession,
	})

	tokenString, err := token.SignedString([]byte(s.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, nil
}

// Parse validates a session token and extracts the workspace and device IDs.
func (s *Session) Parse(tokenString string) (uuid.UUID, uuid.UUID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("failed to parse session token: %w", err)
	}
	if !token.Valid {
		return uuid.Nil, uuid.Nil, fmt.Errorf("session token is invalid")
	}
	if claims.TokenType != typeSession {
		return uuid.Nil, uuid.Nil, fmt.Errorf("token type mismatch: %s", claims.TokenType)
	}
	return claims.WorkspaceID, claims.DeviceID, nil
}
