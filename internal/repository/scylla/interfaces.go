package scylla

import (
	"context"
	"errors"

	"club-ledger/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// MemberRepository defines member persistence. Implementations own the
// username uniqueness invariant (case-normalized usernames arrive already
// upper-cased from the service layer).
type MemberRepository interface {
	CreateMember(ctx context.Context, member *models.Member) error
	GetMemberByID(ctx context.Context, memberID string) (*models.Member, error)
	GetMemberByUsername(ctx context.Context, username string) (*models.Member, error)
	ListMembers(ctx context.Context) ([]*models.Member, error)
	FindByPhone(ctx context.Context, phoneNumber string, syncdOnly bool) ([]*models.Member, error)
	UpdateMember(ctx context.Context, member *models.Member) error
	UpdatePassword(ctx context.Context, memberID, passwordHash string) error
	UpdatePermit(ctx context.Context, memberID string, permit int) error
	PromoteToSynced(ctx context.Context, memberID string) error
	SetGuestFlag(ctx context.Context, memberID string, guest int) error
	SetToday(ctx context.Context, memberID string, today int) error
	SetOrderIndex(ctx context.Context, memberID string, orderIndex int) error
	DeleteMember(ctx context.Context, member *models.Member) error
	HealthCheck(ctx context.Context) error
}

// ManagementRepository owns the singleton management row.
type ManagementRepository interface {
	Fetch(ctx context.Context) (*models.ManagementConfig, error)
	Update(ctx context.Context, cfg *models.ManagementConfig) error
	SeedDefault(ctx context.Context) error
}

// DuesRepository stores the 12-cell monthly ledger keyed by username.
type DuesRepository interface {
	GetMonthlyFields(ctx context.Context, username string) ([]int, error)
	SetMonthlyFields(ctx context.Context, username string, values []int) error
	DeleteRecord(ctx context.Context, username string) error
}
