package mocks

import (
	"net"

	"github.com/stretchr/testify/mock"
)

// SecurityLayer is a mock type for the model.SecurityLayer type.
type SecurityLayer struct {
	mock.Mock
}

func (_m *SecurityLayer) Listen(protocol, addr string) (net.Listener, error) {
	ret := _m.Called(protocol, addr)
	var r0 net.Listener
	if v := ret.Get(0); v != nil {
		r0 = v.(net.Listener)
	}
	return r0, ret.Error(1)
}

// NewSecurityLayer creates a new instance of SecurityLayer. It also registers
// a cleanup function to assert the mocks expectations.
func NewSecurityLayer(t interface {
	mock.TestingT
	Cleanup(func())
}) *SecurityLayer {
	m := &SecurityLayer{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
