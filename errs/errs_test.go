package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bhoriuchi/graphql-ws-bridge/errs"
	"github.com/stretchr/testify/assert"
)

func TestErrorKindMatching(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("bridge: %w", errs.New(errs.ErrUpstreamDial, "dial upstream", cause))

	assert.True(t, errors.Is(err, errs.ErrUpstreamDial))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, errs.ErrConfig))
	assert.Contains(t, err.Error(), "dial upstream: upstream dial failed: dial tcp: refused")
}

func TestCloseCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, errs.CloseNormalClosure},
		{errs.New(errs.ErrConfig, "load", nil), errs.CloseInternalError},
		{errs.New(errs.ErrUpstreamDial, "dial", nil), errs.CloseInternalError},
		{errs.New(errs.ErrUnauthenticated, "resolve", nil), errs.CloseUnauthorized},
		{errs.New(errs.ErrProtocolViolation, "client message", nil), errs.CloseUnauthorized},
		{errs.New(errs.ErrTooManyInitialisationRequests, "client init", nil), errs.CloseTooManyInitialisationRequests},
		{errors.New("unknown"), errs.CloseInternalError},
	}

	for _, tt := range tests {
		code, _ := errs.CloseCode(tt.err)
		assert.Equal(t, tt.code, code, "%v", tt.err)
	}
}
