package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// Storage is a mock type for the model.Storage type.
type Storage struct {
	mock.Mock
}

func (_m *Storage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	ret := _m.Called(ctx, key, reader, size, contentType)
	return ret.Error(0)
}

func (_m *Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	ret := _m.Called(ctx, key)
	var r0 io.ReadCloser
	if v := ret.Get(0); v != nil {
		r0 = v.(io.ReadCloser)
	}
	return r0, ret.Error(1)
}

func (_m *Storage) Delete(ctx context.Context, key string) error {
	ret := _m.Called(ctx, key)
	return ret.Error(0)
}

func (_m *Storage) Exists(ctx context.Context, key string) (bool, error) {
	ret := _m.Called(ctx, key)
	return ret.Bool(0), ret.Error(1)
}

// NewStorage creates a new instance of Storage. It also registers a cleanup
// function to assert the mocks expectations.
func NewStorage(t interface {
	mock.TestingT
	Cleanup(func())
}) *Storage {
	m := &Storage{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
