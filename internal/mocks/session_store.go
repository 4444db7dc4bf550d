package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/gophaccount-server/internal/model"
)

// SessionStore is a mock type for the model.SessionStore type.
type SessionStore struct {
	mock.Mock
}

func (_m *SessionStore) Create(ctx context.Context, record model.SessionRecord) error {
	ret := _m.Called(ctx, record)
	return ret.Error(0)
}

func (_m *SessionStore) GetByJTI(ctx context.Context, jti string) (model.SessionRecord, error) {
	ret := _m.Called(ctx, jti)
	return ret.Get(0).(model.SessionRecord), ret.Error(1)
}

func (_m *SessionStore) RevokeByJTI(ctx context.Context, jti string) error {
	ret := _m.Called(ctx, jti)
	return ret.Error(0)
}

func (_m *SessionStore) RevokeAllByAccount(ctx context.Context, accountID uuid.UUID) error {
	ret := _m.Called(ctx, accountID)
	return ret.Error(0)
}

// NewSessionStore creates a new instance of SessionStore. It also registers a
// cleanup function to assert the mocks expectations.
func NewSessionStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *SessionStore {
	m := &SessionStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
