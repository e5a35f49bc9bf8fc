package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"club-ledger/internal/client"
	"club-ledger/internal/encryption"
	"club-ledger/internal/hashing"
	"club-ledger/internal/models"
	"club-ledger/internal/repository/scylla"
	"club-ledger/internal/util"
)

// RegisterRequest carries everything an admission submits after passing the
// keycode gate.
type RegisterRequest struct {
	Keycode     string `json:"keycode"`
	Username    string `json:"username"`
	Password    string `json:"password,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	DOB         string `json:"dob"`
	PictureURL  string `json:"picture_url,omitempty"`
}

// CredentialService owns accounts: registration behind the keycode gate,
// credential validation, password and permit changes, deletion, and the
// management config row.
type CredentialService struct {
	members    scylla.MemberRepository
	management scylla.ManagementRepository
	dues       scylla.DuesRepository
	hasher     *hashing.Hasher
	encryptor  *encryption.EncryptionManager
	events     EventPublisher
	index      RosterIndexer
	locks      *rowLocks
}

func NewCredentialService(
	members scylla.MemberRepository,
	management scylla.ManagementRepository,
	dues scylla.DuesRepository,
	hasher *hashing.Hasher,
	encryptor *encryption.EncryptionManager,
	events EventPublisher,
	index RosterIndexer,
) *CredentialService {
	return &CredentialService{
		members:    members,
		management: management,
		dues:       dues,
		hasher:     hasher,
		encryptor:  encryptor,
		events:     events,
		index:      index,
		locks:      newRowLocks(),
	}
}

// RegisterMember admits a new candidate. The keycode must match the management
// row, the username must be unique case-insensitively, and the phone number
// must normalize. The new record starts unsynced with the lowest permit tier.
func (s *CredentialService) RegisterMember(ctx context.Context, req *RegisterRequest) (*models.Member, error) {
	mgmt, err := s.management.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if mgmt.Keycode == "" ||
		subtle.ConstantTimeCompare([]byte(req.Keycode), []byte(mgmt.Keycode)) != 1 {
		return nil, fmt.Errorf("%w: keycode rejected", ErrValidation)
	}

	username, ok := util.NormalizeUsername(req.Username)
	if !ok {
		return nil, fmt.Errorf("%w: username must be letters and digits", ErrValidation)
	}
	firstName := util.SanitizeInput(req.FirstName)
	lastName := util.SanitizeInput(req.LastName)
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("%w: first and last name required", ErrValidation)
	}
	phone, ok := util.NormalizePhone(req.PhoneNumber)
	if !ok {
		return nil, ErrInvalidPhoneFormat
	}

	// Password is optional at admission; phone-verified members may never set
	// one. An empty stored hash matches no credential.
	var hash string
	if req.Password != "" {
		hash, err = s.hasher.HashPassword(req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	member := &models.Member{
		Username:     username,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		PhoneNumber:  phone,
		DOB:          util.SanitizeInput(req.DOB),
		PictureURL:   req.PictureURL,
		Permit:       models.PermitRegular,
		Today:        models.TodayUndecided,
		Syncd:        0,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.members.CreateMember(ctx, member); err != nil {
		if errors.Is(err, scylla.ErrUsernameTaken) {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}

	s.publish(ctx, &client.ClubEvent{
		Type:     client.EventMemberAdmitted,
		MemberID: member.ID,
		Username: member.Username,
	})

	util.Info("Member admitted",
		zap.String("member_id", member.ID),
		zap.String("username", member.Username))

	return member, nil
}

// ValidateCredentials checks a username/password pair. A wrong password or an
// unknown username is ok=false, not an error; errors are reserved for store
// failures.
func (s *CredentialService) ValidateCredentials(ctx context.Context, username, password string) (int, bool, error) {
	normalized, ok := util.NormalizeUsername(username)
	if !ok {
		return 0, false, nil
	}

	member, err := s.members.GetMemberByUsername(ctx, normalized)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if member.PasswordHash == "" {
		return 0, false, nil
	}

	match, err := s.hasher.VerifyPassword(password, member.PasswordHash)
	if err != nil {
		// A corrupt stored hash can never match; it is not the caller's fault.
		util.Warn("Stored password hash is unreadable",
			zap.String("username", normalized),
			zap.Error(err))
		return 0, false, nil
	}
	if !match {
		return 0, false, nil
	}

	return member.Permit, true, nil
}

// UpdatePassword rotates a member's password after re-proving the current one.
func (s *CredentialService) UpdatePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	normalized, ok := util.NormalizeUsername(username)
	if !ok {
		return fmt.Errorf("%w: username", ErrValidation)
	}
	if newPassword == "" {
		return fmt.Errorf("%w: new password required", ErrValidation)
	}

	member, err := s.members.GetMemberByUsername(ctx, normalized)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}

	match, err := s.hasher.VerifyPassword(currentPassword, member.PasswordHash)
	if err != nil || !match {
		return ErrInvalidCurrentPassword
	}

	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	mu := s.locks.lock("member:" + member.ID)
	defer mu.Unlock()

	if err := s.members.UpdatePassword(ctx, member.ID, hash); err != nil {
		return err
	}

	s.publish(ctx, &client.ClubEvent{
		Type:     client.EventPasswordChanged,
		MemberID: member.ID,
		Username: member.Username,
	})

	return nil
}

// UpdatePermit changes a member's tier. Admin-tier records are protected:
// they can never be permit-edited through this operation, whoever asks.
func (s *CredentialService) UpdatePermit(ctx context.Context, memberID string, newPermit int, actor string) error {
	if !models.ValidPermit(newPermit) {
		return fmt.Errorf("%w: unknown permit tier %d", ErrValidation, newPermit)
	}

	member, err := s.members.GetMemberByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	if member.IsProtected() {
		return ErrProtectedMember
	}

	mu := s.locks.lock("member:" + member.ID)
	defer mu.Unlock()

	if err := s.members.UpdatePermit(ctx, member.ID, newPermit); err != nil {
		return err
	}

	s.publish(ctx, &client.ClubEvent{
		Type:     client.EventPermitChanged,
		MemberID: member.ID,
		Username: member.Username,
		Actor:    actor,
		Detail:   map[string]interface{}{"from": member.Permit, "to": newPermit},
	})

	return nil
}

// DeleteMember removes a member record plus its dues row and search document.
// Admin-tier records are protected and never deleted.
func (s *CredentialService) DeleteMember(ctx context.Context, memberID, actor string) error {
	member, err := s.members.GetMemberByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	if member.IsProtected() {
		return ErrProtectedMember
	}

	mu := s.locks.lock("member:" + member.ID)
	defer mu.Unlock()

	if err := s.members.DeleteMember(ctx, member); err != nil {
		return err
	}

	if err := s.dues.DeleteRecord(ctx, member.Username); err != nil {
		util.Warn("Failed to delete dues record for removed member",
			zap.String("username", member.Username),
			zap.Error(err))
	}
	if s.index != nil {
		if err := s.index.RemoveMember(ctx, member.ID); err != nil {
			util.Warn("Failed to remove member from search index",
				zap.String("member_id", member.ID),
				zap.Error(err))
		}
	}

	s.publish(ctx, &client.ClubEvent{
		Type:     client.EventMemberDeleted,
		MemberID: member.ID,
		Username: member.Username,
		Actor:    actor,
	})

	return nil
}

// SetRecovery stores an encrypted recovery note on the member record.
func (s *CredentialService) SetRecovery(ctx context.Context, memberID, note string) error {
	member, err := s.members.GetMemberByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}

	encrypted := note
	if s.encryptor != nil {
		encrypted, err = s.encryptor.EncryptString(ctx, note)
		if err != nil {
			return fmt.Errorf("failed to encrypt recovery note: %w", err)
		}
	}

	mu := s.locks.lock("member:" + member.ID)
	defer mu.Unlock()

	member.Recovery = encrypted
	return s.members.UpdateMember(ctx, member)
}

// GetRecovery decrypts and returns a member's recovery note.
func (s *CredentialService) GetRecovery(ctx context.Context, memberID string) (string, error) {
	member, err := s.members.GetMemberByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return "", ErrMemberNotFound
		}
		return "", err
	}
	if member.Recovery == "" || s.encryptor == nil {
		return member.Recovery, nil
	}
	return s.encryptor.DecryptString(ctx, member.Recovery)
}

// FetchManagementConfig returns the singleton management row, seeding the
// default on first access.
func (s *CredentialService) FetchManagementConfig(ctx context.Context) (*models.ManagementConfig, error) {
	return s.management.Fetch(ctx)
}

// UpdateManagementConfig overwrites the management row.
func (s *CredentialService) UpdateManagementConfig(ctx context.Context, cfg *models.ManagementConfig, actor string) error {
	if cfg.Fee < 0 {
		return fmt.Errorf("%w: fee cannot be negative", ErrValidation)
	}

	mu := s.locks.lock("management")
	defer mu.Unlock()

	cfg.ID = models.ManagementRowID
	if err := s.management.Update(ctx, cfg); err != nil {
		return err
	}

	s.publish(ctx, &client.ClubEvent{
		Type:   client.EventConfigUpdated,
		Actor:  actor,
		Detail: map[string]interface{}{"fee": cfg.Fee},
	})

	return nil
}

func (s *CredentialService) publish(ctx context.Context, event *client.ClubEvent) {
	if s.events == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	if err := s.events.PublishEvent(ctx, event); err != nil {
		util.Warn("Failed to publish club event",
			zap.String("type", event.Type),
			zap.Error(err))
	}
}
