package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// Token is a mock implementation of the MQTT.Token interface.
type Token struct {
	mock.Mock
}

// NewToken returns a Token that reports completion with err from every method.
func NewToken(err error) *Token {
	done := make(chan struct{})
	close(done)

	t := new(Token)
	t.On("Wait").Return(true).Maybe()
	t.On("WaitTimeout", mock.Anything).Return(true).Maybe()
	t.On("Done").Return((<-chan struct{})(done)).Maybe()
	t.On("Error").Return(err).Maybe()
	return t
}

// Error returns the error associated with the token
func (m *Token) Error() error {
	args := m.Called()
	return args.Error(0)
}

// Wait waits for the token to complete
func (m *Token) Wait() bool {
	args := m.Called()
	return args.Bool(0)
}

// WaitTimeout waits for the token to complete or timeout
func (m *Token) WaitTimeout(timeout time.Duration) bool {
	args := m.Called(timeout)
	return args.Bool(0)
}

// Done returns a channel closed when the token completes
func (m *Token) Done() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(<-chan struct{})
}
