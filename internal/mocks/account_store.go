package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/gophaccount-server/internal/model"
)

// AccountStore is a mock type for the model.AccountStore type.
type AccountStore struct {
	mock.Mock
}

func (_m *AccountStore) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	ret := _m.Called(ctx, email)
	return ret.Get(0).(model.Account), ret.Error(1)
}

func (_m *AccountStore) FindByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	ret := _m.Called(ctx, id)
	return ret.Get(0).(model.Account), ret.Error(1)
}

func (_m *AccountStore) Create(ctx context.Context, draft model.AccountDraft) (model.Account, error) {
	ret := _m.Called(ctx, draft)
	if rf, ok := ret.Get(0).(func(context.Context, model.AccountDraft) model.Account); ok {
		return rf(ctx, draft), ret.Error(1)
	}
	return ret.Get(0).(model.Account), ret.Error(1)
}

func (_m *AccountStore) Save(ctx context.Context, account model.Account) (model.Account, error) {
	ret := _m.Called(ctx, account)
	if rf, ok := ret.Get(0).(func(context.Context, model.Account) model.Account); ok {
		return rf(ctx, account), ret.Error(1)
	}
	return ret.Get(0).(model.Account), ret.Error(1)
}

func (_m *AccountStore) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int) (model.Account, error) {
	ret := _m.Called(ctx, id, maxAttempts)
	return ret.Get(0).(model.Account), ret.Error(1)
}

func (_m *AccountStore) ResetLoginFailures(ctx context.Context, id uuid.UUID) (model.Account, error) {
	ret := _m.Called(ctx, id)
	return ret.Get(0).(model.Account), ret.Error(1)
}

func (_m *AccountStore) Ping(ctx context.Context) error {
	ret := _m.Called(ctx)
	return ret.Error(0)
}

// NewAccountStore creates a new instance of AccountStore. It also registers a
// cleanup function to assert the mocks expectations.
func NewAccountStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *AccountStore {
	m := &AccountStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
