package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"club-ledger/internal/client"
	"club-ledger/internal/models"
)

func newDirectoryFixture(t *testing.T) (*DirectoryService, *fakeMemberRepo, *recordingPublisher) {
	t.Helper()
	members := newFakeMemberRepo()
	events := &recordingPublisher{}
	return NewDirectoryService(members, events, nil), members, events
}

func seedMember(t *testing.T, repo *fakeMemberRepo, m *models.Member) *models.Member {
	t.Helper()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, repo.CreateMember(context.Background(), m))
	return m
}

func TestListCandidates(t *testing.T) {
	svc, members, _ := newDirectoryFixture(t)
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	seedMember(t, members, &models.Member{Username: "LATER", Syncd: 0, CreatedAt: base.Add(time.Hour)})
	seedMember(t, members, &models.Member{Username: "FIRST", Syncd: 0, CreatedAt: base})
	seedMember(t, members, &models.Member{Username: "ONROSTER", Syncd: 1, CreatedAt: base})

	candidates, err := svc.ListCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "FIRST", candidates[0].Username)
	assert.Equal(t, "LATER", candidates[1].Username)
}

func TestPromoteToSynced(t *testing.T) {
	svc, members, events := newDirectoryFixture(t)
	ctx := context.Background()

	candidate := seedMember(t, members, &models.Member{
		Username: "NEW", PhoneNumber: "+14045551234", Syncd: 0,
	})

	// Wrong purpose never promotes.
	_, err := svc.PromoteToSynced(ctx, candidate.ID, &models.VerifiedPhone{
		PhoneNumber: "+14045551234", Purpose: models.PurposeRecovery,
	})
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// Proof for somebody else's phone never promotes.
	_, err = svc.PromoteToSynced(ctx, candidate.ID, &models.VerifiedPhone{
		PhoneNumber: "+19995550000", Purpose: models.PurposeAdmission,
	})
	assert.ErrorIs(t, err, ErrValidation)

	promoted, err := svc.PromoteToSynced(ctx, candidate.ID, &models.VerifiedPhone{
		PhoneNumber: "+14045551234", Purpose: models.PurposeAdmission,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, promoted.Syncd)

	got, err := members.GetMemberByID(ctx, candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Syncd)
	assert.Contains(t, events.types(), client.EventMemberPromoted)
}

func TestSortRoster(t *testing.T) {
	mk := func(username, last string, attendance int, dob string, order int) *models.Member {
		return &models.Member{
			Username: username, LastName: last,
			Attendance: attendance, DOB: dob, OrderIndex: order,
		}
	}

	t.Run("by name", func(t *testing.T) {
		roster := []*models.Member{
			mk("C", "Young", 0, "", 0),
			mk("A", "adams", 0, "", 1),
			mk("B", "Burns", 0, "", 2),
		}
		SortRoster(roster, SortByName)
		assert.Equal(t, []string{"A", "B", "C"}, usernames(roster))
	})

	t.Run("by attendance descending", func(t *testing.T) {
		roster := []*models.Member{
			mk("LOW", "", 2, "", 0),
			mk("HIGH", "", 9, "", 1),
			mk("MID", "", 5, "", 2),
		}
		SortRoster(roster, SortByAttendance)
		assert.Equal(t, []string{"HIGH", "MID", "LOW"}, usernames(roster))
	})

	t.Run("by age oldest first", func(t *testing.T) {
		roster := []*models.Member{
			mk("YOUNG", "", 0, "2001-06-15", 0),
			mk("OLD", "", 0, "1970-01-20", 1),
		}
		SortRoster(roster, SortByAge)
		assert.Equal(t, []string{"OLD", "YOUNG"}, usernames(roster))
	})

	t.Run("malformed dob keeps position", func(t *testing.T) {
		roster := []*models.Member{
			mk("BROKEN", "", 0, "not-a-date", 0),
			mk("OLD", "", 0, "1970-01-20", 1),
		}
		SortRoster(roster, SortByAge)
		// The comparator refuses to move records it cannot compare.
		assert.Equal(t, []string{"BROKEN", "OLD"}, usernames(roster))
	})

	t.Run("default manual order", func(t *testing.T) {
		roster := []*models.Member{
			mk("B", "", 0, "", 1),
			mk("A", "", 0, "", 0),
		}
		SortRoster(roster, "bogus")
		assert.Equal(t, []string{"A", "B"}, usernames(roster))
	})
}

func usernames(members []*models.Member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Username
	}
	return out
}

func TestReorder_GuestsAfterMembers(t *testing.T) {
	svc, members, _ := newDirectoryFixture(t)
	ctx := context.Background()

	guestA := seedMember(t, members, &models.Member{Username: "GUESTA", Guest: 1, Syncd: 1})
	memberB := seedMember(t, members, &models.Member{Username: "MEMBERB", Syncd: 1})
	guestC := seedMember(t, members, &models.Member{Username: "GUESTC", Guest: 1, Syncd: 1})
	memberD := seedMember(t, members, &models.Member{Username: "MEMBERD", Syncd: 1})

	// The caller puts guests first; persistence must not honor that.
	err := svc.Reorder(ctx, []string{guestA.ID, memberB.ID, guestC.ID, memberD.ID})
	require.NoError(t, err)

	index := func(id string) int {
		m, err := members.GetMemberByID(ctx, id)
		require.NoError(t, err)
		return m.OrderIndex
	}

	// Every guest lands strictly after every non-guest.
	assert.Greater(t, index(guestA.ID), index(memberB.ID))
	assert.Greater(t, index(guestA.ID), index(memberD.ID))
	assert.Greater(t, index(guestC.ID), index(memberB.ID))
	assert.Greater(t, index(guestC.ID), index(memberD.ID))

	// Relative order inside each partition is the caller's.
	assert.Less(t, index(memberB.ID), index(memberD.ID))
	assert.Less(t, index(guestA.ID), index(guestC.ID))
}

func TestReorder_UnknownMember(t *testing.T) {
	svc, _, _ := newDirectoryFixture(t)

	err := svc.Reorder(context.Background(), []string{"no-such-id"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSetToday(t *testing.T) {
	svc, members, _ := newDirectoryFixture(t)
	ctx := context.Background()

	m := seedMember(t, members, &models.Member{Username: "FRANK", Syncd: 1})

	err := svc.SetToday(ctx, "frank", models.TodayUndecided)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, svc.SetToday(ctx, "frank", models.TodayIn))
	got, err := members.GetMemberByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TodayIn, got.Today)

	require.NoError(t, svc.SetToday(ctx, "FRANK", models.TodayOut))
	got, err = members.GetMemberByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TodayOut, got.Today)

	err = svc.SetToday(ctx, "nobody", models.TodayIn)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestMarkAttendance(t *testing.T) {
	svc, members, _ := newDirectoryFixture(t)
	ctx := context.Background()

	m := seedMember(t, members, &models.Member{Username: "FRANK", Syncd: 1, Attendance: 4})

	require.NoError(t, svc.MarkAttendance(ctx, "frank"))
	got, err := members.GetMemberByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Attendance)
}

func TestRecoverUsername(t *testing.T) {
	svc, members, _ := newDirectoryFixture(t)
	ctx := context.Background()

	seedMember(t, members, &models.Member{Username: "FRANK", PhoneNumber: "+14045551234", Syncd: 1})
	// Candidates never match recovery, even on the same number.
	seedMember(t, members, &models.Member{Username: "PENDING", PhoneNumber: "+14045559999", Syncd: 0})
	seedMember(t, members, &models.Member{Username: "DUPA", PhoneNumber: "+14045558888", Syncd: 1})
	seedMember(t, members, &models.Member{Username: "DUPB", PhoneNumber: "+14045558888", Syncd: 1})

	proof := func(phone string) *models.VerifiedPhone {
		return &models.VerifiedPhone{PhoneNumber: phone, Purpose: models.PurposeRecovery}
	}

	username, err := svc.RecoverUsername(ctx, proof("+14045551234"))
	require.NoError(t, err)
	assert.Equal(t, "FRANK", username)

	// Zero matches.
	_, err = svc.RecoverUsername(ctx, proof("+10005550000"))
	assert.ErrorIs(t, err, ErrNoAccountFound)

	// An unsynced match counts as zero.
	_, err = svc.RecoverUsername(ctx, proof("+14045559999"))
	assert.ErrorIs(t, err, ErrNoAccountFound)

	// Multiple matches are indistinguishable from none.
	_, err = svc.RecoverUsername(ctx, proof("+14045558888"))
	assert.ErrorIs(t, err, ErrNoAccountFound)

	// An admission proof cannot drive recovery.
	_, err = svc.RecoverUsername(ctx, &models.VerifiedPhone{
		PhoneNumber: "+14045551234", Purpose: models.PurposeAdmission,
	})
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestSearchRoster_ScanFallback(t *testing.T) {
	svc, members, _ := newDirectoryFixture(t)
	ctx := context.Background()

	seedMember(t, members, &models.Member{Username: "FRANK", FirstName: "Frank", LastName: "Field", Syncd: 1})
	seedMember(t, members, &models.Member{Username: "FAYE", FirstName: "Faye", LastName: "Franklin", Syncd: 1})
	seedMember(t, members, &models.Member{Username: "PENDING", FirstName: "Frankie", LastName: "New", Syncd: 0})

	results, err := svc.SearchRoster(ctx, "frank")
	require.NoError(t, err)
	require.Len(t, results, 2)

	_, err = svc.SearchRoster(ctx, "   ")
	assert.ErrorIs(t, err, ErrValidation)
}
