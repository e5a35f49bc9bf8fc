package verify

import (
	"context"
	"fmt"

	"club-ledger/internal/util"

	"go.uber.org/zap"
)

// CodeProvider delivers one-time verification codes out of band (SMS). The
// engine never returns the code to callers; delivery is the provider's
// problem and failures surface verbatim through ProviderError.
type CodeProvider interface {
	SendCode(ctx context.Context, phoneNumber, code string) error
}

// ProviderError wraps a delivery failure, preserving the provider's
// human-readable cause for the caller.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError carrying the upstream message.
func NewProviderError(provider string, err error) *ProviderError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ProviderError{Provider: provider, Message: msg, Err: err}
}

// DevProvider is the development stand-in: it logs instead of sending.
// Never wire it in production; codes in logs defeat the whole protocol.
type DevProvider struct{}

func NewDevProvider() *DevProvider {
	return &DevProvider{}
}

func (p *DevProvider) SendCode(ctx context.Context, phoneNumber, code string) error {
	util.Warn("DEV provider: verification code not sent via SMS",
		zap.String("phone_number", phoneNumber),
		zap.String("code", code))
	return nil
}
