package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"club-ledger/internal/config"
	"club-ledger/internal/models"
	redisrepo "club-ledger/internal/repository/redis"
	"club-ledger/internal/util"
	"club-ledger/internal/verify"
)

// SessionStore persists verification sessions. The redis cache satisfies it;
// tests substitute an in-memory map.
type SessionStore interface {
	Save(ctx context.Context, session *models.VerificationSession, ttl time.Duration) error
	Get(ctx context.Context, verificationID string) (*models.VerificationSession, error)
	Update(ctx context.Context, session *models.VerificationSession) error
	Delete(ctx context.Context, session *models.VerificationSession) error
}

// VerificationService runs the phone challenge protocol: issue a code, confirm
// it within an attempt budget, and hand back a one-shot proof of possession.
type VerificationService struct {
	sessions SessionStore
	provider verify.CodeProvider
	cfg      config.ClubConfig
}

func NewVerificationService(sessions SessionStore, provider verify.CodeProvider, cfg config.ClubConfig) *VerificationService {
	return &VerificationService{
		sessions: sessions,
		provider: provider,
		cfg:      cfg,
	}
}

// RequestCode normalizes the phone number, issues a fresh session, and asks
// the provider to deliver the code. Any prior session for the same phone is
// torn down before the new one is stored; the code itself is never returned.
// Provider failures surface as *verify.ProviderError with the session already
// destroyed.
func (s *VerificationService) RequestCode(ctx context.Context, phoneNumber, purpose string) (string, error) {
	if purpose != models.PurposeAdmission && purpose != models.PurposeRecovery {
		return "", fmt.Errorf("%w: unknown purpose %q", ErrValidation, purpose)
	}

	normalized, ok := util.NormalizePhone(phoneNumber)
	if !ok {
		return "", ErrInvalidPhoneFormat
	}

	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	salt, err := generateSalt()
	if err != nil {
		return "", fmt.Errorf("failed to generate code salt: %w", err)
	}

	session := &models.VerificationSession{
		VerificationID: uuid.New().String(),
		PhoneNumber:    normalized,
		Purpose:        purpose,
		CodeHash:       hashCode(code, salt),
		CodeSalt:       salt,
		Attempts:       0,
		IssuedAt:       time.Now().UTC(),
	}

	if err := s.sessions.Save(ctx, session, s.cfg.VerificationTTL); err != nil {
		return "", err
	}

	if err := s.provider.SendCode(ctx, normalized, code); err != nil {
		// A session whose code was never delivered is useless; tear it down
		// so the phone mapping does not block a retry.
		if delErr := s.sessions.Delete(ctx, session); delErr != nil {
			util.Warn("Failed to tear down undelivered session",
				zap.String("verification_id", session.VerificationID),
				zap.Error(delErr))
		}
		var perr *verify.ProviderError
		if errors.As(err, &perr) {
			return "", perr
		}
		return "", verify.NewProviderError("unknown", err)
	}

	util.Info("Verification code requested",
		zap.String("verification_id", session.VerificationID),
		zap.String("purpose", purpose))

	return session.VerificationID, nil
}

// ConfirmCode checks the submitted code against the session. A match consumes
// the session and returns the one-shot proof; a mismatch burns an attempt, and
// exhausting the attempt budget destroys the session outright.
func (s *VerificationService) ConfirmCode(ctx context.Context, verificationID, code string) (*models.VerifiedPhone, error) {
	session, err := s.sessions.Get(ctx, verificationID)
	if err != nil {
		if errors.Is(err, redisrepo.ErrSessionNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	submitted := hashCode(code, session.CodeSalt)
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(session.CodeHash)) != 1 {
		session.Attempts++
		if session.Attempts >= s.cfg.VerificationAttempts {
			if err := s.sessions.Delete(ctx, session); err != nil {
				util.Warn("Failed to destroy exhausted session",
					zap.String("verification_id", verificationID),
					zap.Error(err))
			}
			util.Info("Verification session exhausted",
				zap.String("verification_id", verificationID),
				zap.Int("attempts", session.Attempts))
			return nil, ErrCodeMismatch
		}
		if err := s.sessions.Update(ctx, session); err != nil {
			return nil, err
		}
		return nil, ErrCodeMismatch
	}

	// Consumed: the proof is one-shot, the session must not survive it.
	if err := s.sessions.Delete(ctx, session); err != nil {
		return nil, err
	}

	util.Info("Phone verified",
		zap.String("verification_id", verificationID),
		zap.String("purpose", session.Purpose))

	return &models.VerifiedPhone{
		PhoneNumber: session.PhoneNumber,
		Purpose:     session.Purpose,
		VerifiedAt:  time.Now().UTC(),
	}, nil
}

// Cancel tears down a pending session. Cancelling an unknown or already
// consumed session is a no-op.
func (s *VerificationService) Cancel(ctx context.Context, verificationID string) error {
	session, err := s.sessions.Get(ctx, verificationID)
	if err != nil {
		if errors.Is(err, redisrepo.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	return s.sessions.Delete(ctx, session)
}

func generateCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

func generateSalt() (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt), nil
}

func hashCode(code, salt string) string {
	sum := sha256.Sum256([]byte(salt + ":" + code))
	return hex.EncodeToString(sum[:])
}
