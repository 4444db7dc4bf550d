package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// PasswordHasher is a mock type for the model.PasswordHasher type.
type PasswordHasher struct {
	mock.Mock
}

func (_m *PasswordHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	ret := _m.Called(ctx, plaintext)
	return ret.String(0), ret.Error(1)
}

func (_m *PasswordHasher) Verify(ctx context.Context, plaintext, digest string) (bool, error) {
	ret := _m.Called(ctx, plaintext, digest)
	return ret.Bool(0), ret.Error(1)
}

// NewPasswordHasher creates a new instance of PasswordHasher. It also registers
// a cleanup function to assert the mocks expectations.
func NewPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
}) *PasswordHasher {
	m := &PasswordHasher{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
