package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/gophaccount-server/internal/model"
)

const typeSession = "session"

// Claims represents session JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	AvatarRef string    `json:"avatar,omitempty"`
	TokenType string    `json:"typ"`
}

// JWT implements TokenManager backed by symmetric HMAC.
type JWT struct {
	secretKey string
	now       func() time.Time
}

// NewJWT creates a new JWT token manager with the provided secret key.
func NewJWT(secretKey string) *JWT {
	return &JWT{
		secretKey: secretKey,
		now:       time.Now,
	}
}

var _ model.TokenManager = (*JWT)(nil)

// GenerateSessionToken signs a session token for the descriptor and returns it with its JTI.
func (j *JWT) GenerateSessionToken(session model.Session, ttl time.Duration) (string, string, error) {
	if session.AccountID == uuid.Nil {
		return "", "", errors.New("session has no account")
	}
	if ttl <= 0 {
		return "", "", fmt.Errorf("invalid session ttl %s", ttl)
	}

	now := j.now()
	jti := uuid.NewString()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   session.AccountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		AccountID: session.AccountID,
		Email:     session.Email,
		Username:  session.Username,
		AvatarRef: session.AvatarRef,
		TokenType: typeSession,
	})

	tokenString, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, jti, nil
}

// ParseSessionToken validates the token and returns the session descriptor it carries.
func (j *JWT) ParseSessionToken(tokenString string) (model.Session, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(j.secretKey), nil
	}, jwt.WithTimeFunc(j.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Session{}, model.ErrSessionExpired
		}
		return model.Session{}, fmt.Errorf("failed to parse session token: %w", err)
	}
	if !token.Valid {
		return model.Session{}, fmt.Errorf("session token is invalid")
	}
	if claims.TokenType != typeSession {
		return model.Session{}, fmt.Errorf("token type mismatch: %s", claims.TokenType)
	}
	if claims.ID == "" || claims.AccountID == uuid.Nil {
		return model.Session{}, fmt.Errorf("session token is missing identity claims")
	}

	return model.Session{
		JTI:       claims.ID,
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Username:  claims.Username,
		AvatarRef: claims.AvatarRef,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
