package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderErrorMapsCodes(t *testing.T) {
	rejected := &ProviderError{Code: CodeUserRejected, Message: "user denied request"}
	assert.ErrorIs(t, rejected, ErrUserRejected)
	assert.NotErrorIs(t, rejected, ErrRequestPending)

	pending := &ProviderError{Code: CodeRequestPending, Message: "already processing"}
	assert.ErrorIs(t, pending, ErrRequestPending)
	assert.NotErrorIs(t, pending, ErrUserRejected)

	unknown := &ProviderError{Code: -32603, Message: "internal"}
	assert.NotErrorIs(t, unknown, ErrUserRejected)
	assert.NotErrorIs(t, unknown, ErrRequestPending)
}

func TestProviderErrorSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("connect: %w", &ProviderError{Code: CodeUserRejected, Message: "user denied"})
	assert.ErrorIs(t, err, ErrUserRejected)

	var perr *ProviderError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, CodeUserRejected, perr.Code)
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Code: 4001, Message: "user denied request"}
	assert.Equal(t, "provider error 4001: user denied request", err.Error())
}
