package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"club-ledger/internal/client"
	"club-ledger/internal/models"
	"club-ledger/internal/util"
)

const (
	sessionPrefix = "verify:session:"
	phonePrefix   = "verify:phone:"
)

// ErrSessionNotFound marks an absent, expired, or cancelled session.
var ErrSessionNotFound = errors.New("verification session not found")

// VerificationCache stores verification sessions under a TTL and keeps the
// single-flight invariant: at most one live session per phone number.
type VerificationCache struct {
	client *client.RedisClient
}

func NewVerificationCache(client *client.RedisClient) *VerificationCache {
	return &VerificationCache{client: client}
}

// Save stores a session and points the phone mapping at it, tearing down any
// session previously live for the same phone number.
func (c *VerificationCache) Save(ctx context.Context, session *models.VerificationSession, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	phoneKey := phonePrefix + session.PhoneNumber

	// Invalidate the prior session for this phone, if any.
	if oldID, err := c.client.Get(ctx, phoneKey); err == nil && oldID != "" {
		if err := c.client.Del(ctx, sessionPrefix+oldID); err != nil {
			return fmt.Errorf("failed to invalidate prior session: %w", err)
		}
		util.Debug("Prior verification session invalidated",
			zap.String("phone_number", session.PhoneNumber))
	} else if err != nil && !errors.Is(err, client.ErrKeyNotFound) {
		return fmt.Errorf("failed to check prior session: %w", err)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, sessionPrefix+session.VerificationID, payload, ttl)
	pipe.Set(ctx, phoneKey, session.VerificationID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to save verification session",
			zap.String("phone_number", session.PhoneNumber),
			zap.Error(err))
		return fmt.Errorf("failed to save verification session: %w", err)
	}

	util.Debug("Verification session saved",
		zap.String("verification_id", session.VerificationID),
		zap.String("purpose", session.Purpose),
		zap.Duration("ttl", ttl))

	return nil
}

func (c *VerificationCache) Get(ctx context.Context, verificationID string) (*models.VerificationSession, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, sessionPrefix+verificationID)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get verification session: %w", err)
	}

	session := &models.VerificationSession{}
	if err := json.Unmarshal([]byte(raw), session); err != nil {
		return nil, fmt.Errorf("corrupt verification session: %w", err)
	}

	return session, nil
}

// Update rewrites session state (attempt counter) without extending the TTL.
func (c *VerificationCache) Update(ctx context.Context, session *models.VerificationSession) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	err = c.client.Client.Set(ctx, sessionPrefix+session.VerificationID, payload, goredis.KeepTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to update verification session: %w", err)
	}
	return nil
}

// Delete removes the session and its phone mapping; used on consume and on
// explicit cancel.
func (c *VerificationCache) Delete(ctx context.Context, session *models.VerificationSession) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.client.Del(ctx,
		sessionPrefix+session.VerificationID,
		phonePrefix+session.PhoneNumber)
	if err != nil {
		util.Error("Failed to delete verification session",
			zap.String("verification_id", session.VerificationID),
			zap.Error(err))
		return fmt.Errorf("failed to delete verification session: %w", err)
	}

	util.Debug("Verification session deleted",
		zap.String("verification_id", session.VerificationID))

	return nil
}
