package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"club-ledger/internal/service"
	"club-ledger/internal/verify"
)

func TestGetStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", service.ErrValidation, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("context: %w", service.ErrValidation), http.StatusBadRequest},
		{"invalid phone", service.ErrInvalidPhoneFormat, http.StatusBadRequest},
		{"member not found", service.ErrMemberNotFound, http.StatusNotFound},
		{"no account found", service.ErrNoAccountFound, http.StatusNotFound},
		{"duplicate username", service.ErrDuplicateUsername, http.StatusConflict},
		{"protected member", service.ErrProtectedMember, http.StatusForbidden},
		{"wrong current password", service.ErrInvalidCurrentPassword, http.StatusUnauthorized},
		{"code mismatch", service.ErrCodeMismatch, http.StatusUnauthorized},
		{"session invalid", service.ErrSessionInvalid, http.StatusGone},
		{"provider failure", verify.NewProviderError("sms", errors.New("down")), http.StatusBadGateway},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getStatusCode(tt.err))
		})
	}
}
