package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"club-ledger/internal/bucketing"
	"club-ledger/internal/models"
	"club-ledger/internal/util"
)

type memberRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.BucketingManager
}

func NewMemberRepository(client *ScyllaClient, bucketingMgr *bucketing.BucketingManager) MemberRepository {
	return &memberRepository{
		client:    client,
		bucketing: bucketingMgr,
	}
}

// CreateMember inserts the member row after claiming the username through a
// lightweight transaction on the lookup table. The LWT is what enforces
// case-insensitive uniqueness: the service upper-cases before calling.
func (r *memberRepository) CreateMember(ctx context.Context, member *models.Member) error {
	if member.ID == "" {
		member.ID = gocql.TimeUUID().String()
	}
	member.Bucket = r.bucketing.GetMemberBucket(member.ID)

	now := time.Now().UTC()
	member.CreatedAt = now
	member.UpdatedAt = &now

	applied, err := r.client.Session.Query(`
        INSERT INTO username_to_member (username, bucket, member_id)
        VALUES (?, ?, ?) IF NOT EXISTS`,
		member.Username, member.Bucket, member.ID).
		WithContext(ctx).ScanCAS(nil, nil, nil)
	if err != nil {
		util.Error("Failed to claim username",
			zap.String("username", member.Username),
			zap.Error(err))
		return fmt.Errorf("failed to claim username: %w", err)
	}
	if !applied {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, member.Username)
	}

	query := r.client.Prepared.InsertMember.Bind(
		member.Bucket, member.ID, member.Username, member.PasswordHash,
		member.FirstName, member.LastName, member.PhoneNumber, member.DOB,
		member.Attendance, member.Permit, member.Today, member.Guest,
		member.Recovery, member.Syncd, member.OrderIndex, member.PictureURL,
		member.CreatedAt, member.UpdatedAt)

	if err := query.WithContext(ctx).Exec(); err != nil {
		// Release the claimed username so a retry is possible.
		_ = r.client.Prepared.DeleteUsername.Bind(member.Username).WithContext(ctx).Exec()
		util.Error("Failed to create member",
			zap.String("username", member.Username),
			zap.String("member_id", member.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create member: %w", err)
	}

	util.Info("Member created",
		zap.String("username", member.Username),
		zap.String("member_id", member.ID),
		zap.Int("bucket", member.Bucket))

	return nil
}

func (r *memberRepository) GetMemberByID(ctx context.Context, memberID string) (*models.Member, error) {
	bucket := r.bucketing.GetMemberBucket(memberID)
	member := &models.Member{}

	query := r.client.Prepared.SelectMemberByID.Bind(bucket, memberID).WithContext(ctx)
	if err := r.scanMember(query, member); err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("%w: member %s", ErrNotFound, memberID)
		}
		util.Error("Failed to get member by id",
			zap.String("member_id", memberID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get member by id: %w", err)
	}

	return member, nil
}

func (r *memberRepository) GetMemberByUsername(ctx context.Context, username string) (*models.Member, error) {
	var (
		name     string
		bucket   int
		memberID string
	)

	query := r.client.Prepared.SelectUsername.Bind(username).WithContext(ctx)
	if err := r.client.ScanWithRetry(query, &name, &bucket, &memberID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("%w: username %s", ErrNotFound, username)
		}
		return nil, fmt.Errorf("failed to look up username: %w", err)
	}

	return r.GetMemberByID(ctx, memberID)
}

// ListMembers returns every member row. The roster is club-sized; views
// (candidates, synced, sorted) are derived in the service layer.
func (r *memberRepository) ListMembers(ctx context.Context) ([]*models.Member, error) {
	iter := r.client.Prepared.SelectAllMembers.WithContext(ctx).Iter()

	var members []*models.Member
	for {
		member := &models.Member{}
		if !iter.Scan(
			&member.Bucket, &member.ID, &member.Username, &member.PasswordHash,
			&member.FirstName, &member.LastName, &member.PhoneNumber, &member.DOB,
			&member.Attendance, &member.Permit, &member.Today, &member.Guest,
			&member.Recovery, &member.Syncd, &member.OrderIndex, &member.PictureURL,
			&member.CreatedAt, &member.UpdatedAt) {
			break
		}
		members = append(members, member)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list members", zap.Error(err))
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return members, nil
}

func (r *memberRepository) FindByPhone(ctx context.Context, phoneNumber string, syncdOnly bool) ([]*models.Member, error) {
	members, err := r.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	var matches []*models.Member
	for _, m := range members {
		if m.PhoneNumber != phoneNumber {
			continue
		}
		if syncdOnly && m.Syncd != 1 {
			continue
		}
		matches = append(matches, m)
	}

	return matches, nil
}

func (r *memberRepository) UpdateMember(ctx context.Context, member *models.Member) error {
	now := time.Now().UTC()
	member.UpdatedAt = &now

	query := r.client.Prepared.UpdateMember.Bind(
		member.Username, member.PasswordHash, member.FirstName, member.LastName,
		member.PhoneNumber, member.DOB, member.Attendance, member.Permit,
		member.Today, member.Guest, member.Recovery, member.Syncd,
		member.OrderIndex, member.PictureURL, member.UpdatedAt,
		member.Bucket, member.ID)

	if err := query.WithContext(ctx).Exec(); err != nil {
		util.Error("Failed to update member",
			zap.String("member_id", member.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update member: %w", err)
	}

	return nil
}

func (r *memberRepository) UpdatePassword(ctx context.Context, memberID, passwordHash string) error {
	return r.execByID(ctx, r.client.Prepared.UpdatePassword, memberID, passwordHash, "update password")
}

func (r *memberRepository) UpdatePermit(ctx context.Context, memberID string, permit int) error {
	return r.execByID(ctx, r.client.Prepared.UpdatePermit, memberID, permit, "update permit")
}

func (r *memberRepository) PromoteToSynced(ctx context.Context, memberID string) error {
	return r.execByID(ctx, r.client.Prepared.UpdateSyncd, memberID, 1, "promote to synced")
}

func (r *memberRepository) SetGuestFlag(ctx context.Context, memberID string, guest int) error {
	return r.execByID(ctx, r.client.Prepared.UpdateGuest, memberID, guest, "set guest flag")
}

func (r *memberRepository) SetToday(ctx context.Context, memberID string, today int) error {
	return r.execByID(ctx, r.client.Prepared.UpdateToday, memberID, today, "set today")
}

func (r *memberRepository) SetOrderIndex(ctx context.Context, memberID string, orderIndex int) error {
	return r.execByID(ctx, r.client.Prepared.UpdateOrderIndex, memberID, orderIndex, "set order index")
}

func (r *memberRepository) DeleteMember(ctx context.Context, member *models.Member) error {
	bucket := r.bucketing.GetMemberBucket(member.ID)

	if err := r.client.Prepared.DeleteMember.Bind(bucket, member.ID).WithContext(ctx).Exec(); err != nil {
		util.Error("Failed to delete member",
			zap.String("member_id", member.ID),
			zap.Error(err))
		return fmt.Errorf("failed to delete member: %w", err)
	}

	if err := r.client.Prepared.DeleteUsername.Bind(member.Username).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to release username: %w", err)
	}

	util.Info("Member deleted",
		zap.String("member_id", member.ID),
		zap.String("username", member.Username))

	return nil
}

func (r *memberRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

func (r *memberRepository) execByID(ctx context.Context, stmt *gocql.Query, memberID string, value interface{}, op string) error {
	bucket := r.bucketing.GetMemberBucket(memberID)
	now := time.Now().UTC()

	if err := stmt.Bind(value, now, bucket, memberID).WithContext(ctx).Exec(); err != nil {
		util.Error("Member update failed",
			zap.String("op", op),
			zap.String("member_id", memberID),
			zap.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

func (r *memberRepository) scanMember(query *gocql.Query, member *models.Member) error {
	return r.client.ScanWithRetry(query,
		&member.Bucket, &member.ID, &member.Username, &member.PasswordHash,
		&member.FirstName, &member.LastName, &member.PhoneNumber, &member.DOB,
		&member.Attendance, &member.Permit, &member.Today, &member.Guest,
		&member.Recovery, &member.Syncd, &member.OrderIndex, &member.PictureURL,
		&member.CreatedAt, &member.UpdatedAt)
}
