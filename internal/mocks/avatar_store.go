package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/gophaccount-server/internal/model"
)

// AvatarStore is a mock type for the model.AvatarStore type.
type AvatarStore struct {
	mock.Mock
}

func (_m *AvatarStore) Put(ctx context.Context, upload model.Upload) (string, error) {
	ret := _m.Called(ctx, upload)
	return ret.String(0), ret.Error(1)
}

func (_m *AvatarStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	ret := _m.Called(ctx, name)
	var r0 io.ReadCloser
	if v := ret.Get(0); v != nil {
		r0 = v.(io.ReadCloser)
	}
	return r0, ret.Error(1)
}

func (_m *AvatarStore) Remove(ctx context.Context, ref string) error {
	ret := _m.Called(ctx, ref)
	return ret.Error(0)
}

// NewAvatarStore creates a new instance of AvatarStore. It also registers a
// cleanup function to assert the mocks expectations.
func NewAvatarStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *AvatarStore {
	m := &AvatarStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
