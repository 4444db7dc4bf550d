package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/gophaccount-server/internal/model"
)

// TokenManager is a mock type for the model.TokenManager type.
type TokenManager struct {
	mock.Mock
}

func (_m *TokenManager) GenerateSessionToken(session model.Session, ttl time.Duration) (string, string, error) {
	ret := _m.Called(session, ttl)
	return ret.String(0), ret.String(1), ret.Error(2)
}

func (_m *TokenManager) ParseSessionToken(token string) (model.Session, error) {
	ret := _m.Called(token)
	return ret.Get(0).(model.Session), ret.Error(1)
}

// NewTokenManager creates a new instance of TokenManager. It also registers a
// cleanup function to assert the mocks expectations.
func NewTokenManager(t interface {
	mock.TestingT
	Cleanup(func())
}) *TokenManager {
	m := &TokenManager{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
