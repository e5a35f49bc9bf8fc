package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"club-ledger/internal/config"
	"club-ledger/internal/models"
	"club-ledger/internal/verify"
)

func newVerificationFixture(t *testing.T) (*VerificationService, *fakeSessionStore, *recordingProvider) {
	t.Helper()
	store := newFakeSessionStore()
	provider := &recordingProvider{}
	svc := NewVerificationService(store, provider, config.ClubConfig{
		VerificationTTL:      time.Minute,
		VerificationAttempts: 3,
		CodeLength:           6,
	})
	return svc, store, provider
}

func TestRequestCode_PhoneNormalization(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare ten digits", "4045551234", "+14045551234"},
		{"eleven digits with country code", "14045551234", "+14045551234"},
		{"formatted", "(404) 555-1234", "+14045551234"},
		{"already e164", "+1 404 555 1234", "+14045551234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, provider := newVerificationFixture(t)

			_, err := svc.RequestCode(context.Background(), tt.input, models.PurposeAdmission)
			require.NoError(t, err)
			require.Len(t, provider.sends, 1)
			assert.Equal(t, tt.want, provider.sends[0].phone)
		})
	}
}

func TestRequestCode_InvalidPhone(t *testing.T) {
	tests := []string{
		"123",
		"40455512345",  // 11 digits not starting with 1
		"440455512340", // 12 digits
		"",
		"not a number",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			svc, store, provider := newVerificationFixture(t)

			_, err := svc.RequestCode(context.Background(), input, models.PurposeAdmission)
			assert.ErrorIs(t, err, ErrInvalidPhoneFormat)
			// The provider is never contacted for a malformed number.
			assert.Empty(t, provider.sends)
			assert.Empty(t, store.sessions)
		})
	}
}

func TestRequestCode_UnknownPurpose(t *testing.T) {
	svc, _, _ := newVerificationFixture(t)

	_, err := svc.RequestCode(context.Background(), "4045551234", "login")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequestCode_ProviderFailure(t *testing.T) {
	svc, store, provider := newVerificationFixture(t)
	provider.err = verify.NewProviderError("sms", errors.New("carrier rejected the number"))

	_, err := svc.RequestCode(context.Background(), "4045551234", models.PurposeAdmission)

	var perr *verify.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Message, "carrier rejected the number")
	// The undelivered session is torn down so a retry is not blocked.
	assert.Empty(t, store.sessions)
}

func TestConfirmCode_Flow(t *testing.T) {
	svc, _, provider := newVerificationFixture(t)
	ctx := context.Background()

	id, err := svc.RequestCode(ctx, "4045551234", models.PurposeAdmission)
	require.NoError(t, err)
	code := provider.lastCode()
	require.Len(t, code, 6)

	// Wrong code burns an attempt but keeps the session alive.
	_, err = svc.ConfirmCode(ctx, id, "000000")
	if code == "000000" {
		t.Skip("generated code collided with the test's wrong guess")
	}
	assert.ErrorIs(t, err, ErrCodeMismatch)

	proof, err := svc.ConfirmCode(ctx, id, code)
	require.NoError(t, err)
	assert.Equal(t, "+14045551234", proof.PhoneNumber)
	assert.Equal(t, models.PurposeAdmission, proof.Purpose)

	// The proof is one shot: the session is gone.
	_, err = svc.ConfirmCode(ctx, id, code)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestConfirmCode_UnknownSession(t *testing.T) {
	svc, _, _ := newVerificationFixture(t)

	_, err := svc.ConfirmCode(context.Background(), "no-such-id", "123456")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestConfirmCode_AttemptsExhausted(t *testing.T) {
	svc, store, provider := newVerificationFixture(t)
	ctx := context.Background()

	id, err := svc.RequestCode(ctx, "4045551234", models.PurposeRecovery)
	require.NoError(t, err)
	code := provider.lastCode()

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		_, err = svc.ConfirmCode(ctx, id, wrong)
		assert.ErrorIs(t, err, ErrCodeMismatch)
	}
	assert.Empty(t, store.sessions)

	// Even the right code is useless once the budget is spent.
	_, err = svc.ConfirmCode(ctx, id, code)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestRequestCode_SingleFlightPerPhone(t *testing.T) {
	svc, _, provider := newVerificationFixture(t)
	ctx := context.Background()

	first, err := svc.RequestCode(ctx, "4045551234", models.PurposeAdmission)
	require.NoError(t, err)
	firstCode := provider.lastCode()

	second, err := svc.RequestCode(ctx, "4045551234", models.PurposeAdmission)
	require.NoError(t, err)
	secondCode := provider.lastCode()
	require.NotEqual(t, first, second)

	// The first session died when the second was issued.
	_, err = svc.ConfirmCode(ctx, first, firstCode)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	proof, err := svc.ConfirmCode(ctx, second, secondCode)
	require.NoError(t, err)
	assert.Equal(t, "+14045551234", proof.PhoneNumber)
}

func TestCancel(t *testing.T) {
	svc, _, provider := newVerificationFixture(t)
	ctx := context.Background()

	id, err := svc.RequestCode(ctx, "4045551234", models.PurposeAdmission)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, id))

	_, err = svc.ConfirmCode(ctx, id, provider.lastCode())
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// Cancelling an unknown session is a no-op.
	assert.NoError(t, svc.Cancel(ctx, "no-such-id"))
}
