package model

import "time"

// TokenManager signs and validates session tokens.
type TokenManager interface {
	GenerateSessionToken(session Session, ttl time.Duration) (token string, jti string, err error)
	ParseSessionToken(token string) (Session, error)
}
