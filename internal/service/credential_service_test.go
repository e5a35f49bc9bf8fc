package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"club-ledger/internal/client"
	"club-ledger/internal/config"
	"club-ledger/internal/hashing"
	"club-ledger/internal/models"
)

func testHasher() *hashing.Hasher {
	return hashing.NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8192,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func newCredentialFixture(t *testing.T) (*CredentialService, *fakeMemberRepo, *fakeDuesRepo, *recordingPublisher) {
	t.Helper()
	members := newFakeMemberRepo()
	mgmt := newFakeManagementRepo(&models.ManagementConfig{
		ID:      models.ManagementRowID,
		Keycode: "OPEN2026",
		Fee:     20,
	})
	dues := newFakeDuesRepo()
	events := &recordingPublisher{}
	svc := NewCredentialService(members, mgmt, dues, testHasher(), nil, events, nil)
	return svc, members, dues, events
}

func registerReq() *RegisterRequest {
	return &RegisterRequest{
		Keycode:     "OPEN2026",
		Username:    "frank",
		Password:    "hunter22",
		FirstName:   "Frank",
		LastName:    "Field",
		PhoneNumber: "4045551234",
		DOB:         "1990-04-01",
	}
}

func TestRegisterMember(t *testing.T) {
	svc, _, _, events := newCredentialFixture(t)

	member, err := svc.RegisterMember(context.Background(), registerReq())
	require.NoError(t, err)

	assert.Equal(t, "FRANK", member.Username)
	assert.Equal(t, "+14045551234", member.PhoneNumber)
	assert.Equal(t, models.PermitRegular, member.Permit)
	assert.Equal(t, 0, member.Syncd)
	assert.NotEqual(t, "hunter22", member.PasswordHash)
	assert.True(t, strings.HasPrefix(member.PasswordHash, "$argon2id$"))
	assert.Contains(t, events.types(), client.EventMemberAdmitted)
}

func TestRegisterMember_KeycodeGate(t *testing.T) {
	svc, _, _, _ := newCredentialFixture(t)

	req := registerReq()
	req.Keycode = "WRONG"
	_, err := svc.RegisterMember(context.Background(), req)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegisterMember_EmptyKeycodeNeverAdmits(t *testing.T) {
	members := newFakeMemberRepo()
	mgmt := newFakeManagementRepo(models.DefaultManagementConfig())
	svc := NewCredentialService(members, mgmt, newFakeDuesRepo(), testHasher(), nil, nil, nil)

	req := registerReq()
	req.Keycode = ""
	_, err := svc.RegisterMember(context.Background(), req)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegisterMember_DuplicateUsernameCaseInsensitive(t *testing.T) {
	svc, _, _, _ := newCredentialFixture(t)
	ctx := context.Background()

	_, err := svc.RegisterMember(ctx, registerReq())
	require.NoError(t, err)

	req := registerReq()
	req.Username = "Frank"
	_, err = svc.RegisterMember(ctx, req)
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestRegisterMember_Validation(t *testing.T) {
	svc, _, _, _ := newCredentialFixture(t)
	ctx := context.Background()

	req := registerReq()
	req.Username = "frank smith"
	_, err := svc.RegisterMember(ctx, req)
	assert.ErrorIs(t, err, ErrValidation)

	req = registerReq()
	req.FirstName = ""
	_, err = svc.RegisterMember(ctx, req)
	assert.ErrorIs(t, err, ErrValidation)

	req = registerReq()
	req.PhoneNumber = "123"
	_, err = svc.RegisterMember(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidPhoneFormat)
}

func TestRegisterMember_PasswordOptional(t *testing.T) {
	svc, _, _, _ := newCredentialFixture(t)
	ctx := context.Background()

	req := registerReq()
	req.Password = ""
	member, err := svc.RegisterMember(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, member.PasswordHash)

	// An empty stored hash matches nothing, not even an empty password.
	_, ok, err := svc.ValidateCredentials(ctx, "frank", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateCredentials(t *testing.T) {
	svc, _, _, _ := newCredentialFixture(t)
	ctx := context.Background()

	_, err := svc.RegisterMember(ctx, registerReq())
	require.NoError(t, err)

	permit, ok, err := svc.ValidateCredentials(ctx, "frank", "hunter22")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.PermitRegular, permit)

	// Username matching is case-insensitive.
	_, ok, err = svc.ValidateCredentials(ctx, "FRANK", "hunter22")
	require.NoError(t, err)
	assert.True(t, ok)

	// A wrong password is a no-match, never an error.
	_, ok, err = svc.ValidateCredentials(ctx, "frank", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	// So is an unknown username.
	_, ok, err = svc.ValidateCredentials(ctx, "nobody", "hunter22")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdatePassword(t *testing.T) {
	svc, _, _, events := newCredentialFixture(t)
	ctx := context.Background()

	_, err := svc.RegisterMember(ctx, registerReq())
	require.NoError(t, err)

	err = svc.UpdatePassword(ctx, "frank", "wrong", "newpass99")
	assert.ErrorIs(t, err, ErrInvalidCurrentPassword)

	require.NoError(t, svc.UpdatePassword(ctx, "frank", "hunter22", "newpass99"))
	assert.Contains(t, events.types(), client.EventPasswordChanged)

	_, ok, err := svc.ValidateCredentials(ctx, "frank", "newpass99")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = svc.ValidateCredentials(ctx, "frank", "hunter22")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdatePermit(t *testing.T) {
	svc, members, _, events := newCredentialFixture(t)
	ctx := context.Background()

	member, err := svc.RegisterMember(ctx, registerReq())
	require.NoError(t, err)

	err = svc.UpdatePermit(ctx, member.ID, 7, "boss")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, svc.UpdatePermit(ctx, member.ID, models.PermitElevated, "boss"))
	got, err := members.GetMemberByID(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PermitElevated, got.Permit)
	assert.Contains(t, events.types(), client.EventPermitChanged)

	err = svc.UpdatePermit(ctx, "no-such-member", models.PermitElevated, "boss")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestUpdatePermit_ProtectedMember(t *testing.T) {
	svc, members, _, _ := newCredentialFixture(t)
	ctx := context.Background()

	admin := &models.Member{
		Username: "CHAIR", FirstName: "Cass", LastName: "Chair",
		Permit: models.PermitAdmin, Syncd: 1, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, members.CreateMember(ctx, admin))

	// Protected records are never permit-edited, whoever the actor is.
	for _, actor := range []string{"regular", "elevated", "admin", "super"} {
		err := svc.UpdatePermit(ctx, admin.ID, models.PermitRegular, actor)
		assert.ErrorIs(t, err, ErrProtectedMember)
	}
}

func TestDeleteMember(t *testing.T) {
	svc, members, dues, events := newCredentialFixture(t)
	ctx := context.Background()

	member, err := svc.RegisterMember(ctx, registerReq())
	require.NoError(t, err)
	require.NoError(t, dues.SetMonthlyFields(ctx, member.Username, []int{20}))

	require.NoError(t, svc.DeleteMember(ctx, member.ID, "admin"))

	_, err = members.GetMemberByID(ctx, member.ID)
	assert.Error(t, err)
	// The dues row goes with the member.
	got, err := dues.GetMonthlyFields(ctx, member.Username)
	require.NoError(t, err)
	assert.Equal(t, make([]int, 12), got)
	assert.Contains(t, events.types(), client.EventMemberDeleted)
}

func TestDeleteMember_ProtectedMember(t *testing.T) {
	svc, members, _, _ := newCredentialFixture(t)
	ctx := context.Background()

	admin := &models.Member{
		Username: "CHAIR", FirstName: "Cass", LastName: "Chair",
		Permit: models.PermitAdmin, Syncd: 1, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, members.CreateMember(ctx, admin))

	err := svc.DeleteMember(ctx, admin.ID, "super")
	assert.ErrorIs(t, err, ErrProtectedMember)

	// Still there.
	_, err = members.GetMemberByID(ctx, admin.ID)
	assert.NoError(t, err)
}

func TestUpdateManagementConfig(t *testing.T) {
	svc, _, _, events := newCredentialFixture(t)
	ctx := context.Background()

	cfg, err := svc.FetchManagementConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OPEN2026", cfg.Keycode)

	cfg.Fee = -1
	err = svc.UpdateManagementConfig(ctx, cfg, "super")
	assert.ErrorIs(t, err, ErrValidation)

	cfg.Fee = 25
	cfg.Venmo = "new-payee"
	require.NoError(t, svc.UpdateManagementConfig(ctx, cfg, "super"))

	got, err := svc.FetchManagementConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, got.Fee)
	assert.Equal(t, "new-payee", got.Venmo)
	assert.Contains(t, events.types(), client.EventConfigUpdated)
}
