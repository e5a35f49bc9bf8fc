package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"club-ledger/internal/client"
	"club-ledger/internal/models"
	"club-ledger/internal/repository/scylla"
	"club-ledger/internal/util"
)

// Roster sort keys.
const (
	SortByOrder      = "order"
	SortByName       = "name"
	SortByAttendance = "attendance"
	SortByAge        = "age"
)

const dobLayout = "2006-01-02"

// DirectoryService owns the membership directory: the candidate queue, the
// synced roster and its orderings, the today flag, and username recovery.
type DirectoryService struct {
	members scylla.MemberRepository
	events  EventPublisher
	index   RosterIndexer
	locks   *rowLocks
}

func NewDirectoryService(members scylla.MemberRepository, events EventPublisher, index RosterIndexer) *DirectoryService {
	return &DirectoryService{
		members: members,
		events:  events,
		index:   index,
		locks:   newRowLocks(),
	}
}

// ListCandidates returns unsynced members in admission order.
func (s *DirectoryService) ListCandidates(ctx context.Context) ([]*models.Member, error) {
	all, err := s.members.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make([]*models.Member, 0)
	for _, m := range all {
		if m.Syncd == 0 {
			candidates = append(candidates, m)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates, nil
}

// PromoteToSynced moves a candidate onto the roster. The proof must be an
// admission proof bound to the candidate's own phone number.
func (s *DirectoryService) PromoteToSynced(ctx context.Context, memberID string, proof *models.VerifiedPhone) (*models.Member, error) {
	if proof == nil || proof.Purpose != models.PurposeAdmission {
		return nil, ErrSessionInvalid
	}

	member, err := s.members.GetMemberByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	if proof.PhoneNumber != member.PhoneNumber {
		return nil, fmt.Errorf("%w: verified phone does not match the candidate", ErrValidation)
	}
	if member.Syncd == 1 {
		return member, nil
	}

	mu := s.locks.lock("member:" + member.ID)
	defer mu.Unlock()

	if err := s.members.PromoteToSynced(ctx, member.ID); err != nil {
		return nil, err
	}
	member.Syncd = 1

	if s.index != nil {
		if err := s.index.IndexMember(ctx, member); err != nil {
			util.Warn("Failed to index promoted member",
				zap.String("member_id", member.ID),
				zap.Error(err))
		}
	}

	s.publish(ctx, &client.ClubEvent{
		Type:     client.EventMemberPromoted,
		MemberID: member.ID,
		Username: member.Username,
	})

	util.Info("Member promoted to roster",
		zap.String("member_id", member.ID),
		zap.String("username", member.Username))

	return member, nil
}

// ListRoster returns synced members under the requested ordering. Unknown
// sort keys fall back to the manual order.
func (s *DirectoryService) ListRoster(ctx context.Context, sortBy string) ([]*models.Member, error) {
	all, err := s.members.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	roster := make([]*models.Member, 0, len(all))
	for _, m := range all {
		if m.Syncd == 1 {
			roster = append(roster, m)
		}
	}
	SortRoster(roster, sortBy)
	return roster, nil
}

// SortRoster orders members in place. Name sorts by last name ascending,
// attendance descending, age by date of birth ascending with unparseable
// dates kept where they are.
func SortRoster(members []*models.Member, sortBy string) {
	switch sortBy {
	case SortByName:
		sort.SliceStable(members, func(i, j int) bool {
			return strings.ToLower(members[i].LastName) < strings.ToLower(members[j].LastName)
		})
	case SortByAttendance:
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Attendance > members[j].Attendance
		})
	case SortByAge:
		sort.SliceStable(members, func(i, j int) bool {
			di, erri := time.Parse(dobLayout, members[i].DOB)
			dj, errj := time.Parse(dobLayout, members[j].DOB)
			if erri != nil || errj != nil {
				return false
			}
			return di.Before(dj)
		})
	default:
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].OrderIndex < members[j].OrderIndex
		})
	}
}

// Reorder persists a manual roster ordering. Whatever order the caller sends,
// non-guests keep lower order indexes than guests; within each partition the
// caller's relative order is preserved.
func (s *DirectoryService) Reorder(ctx context.Context, memberIDs []string) error {
	members := make([]*models.Member, 0, len(memberIDs))
	for _, id := range memberIDs {
		m, err := s.members.GetMemberByID(ctx, id)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return fmt.Errorf("%w: unknown member %s", ErrValidation, id)
			}
			return err
		}
		members = append(members, m)
	}

	ordered := PartitionGuests(members)
	for idx, m := range ordered {
		if err := s.members.SetOrderIndex(ctx, m.ID, idx); err != nil {
			return err
		}
	}
	return nil
}

// PartitionGuests returns members with non-guests first, guests after,
// preserving relative order within each group.
func PartitionGuests(members []*models.Member) []*models.Member {
	ordered := make([]*models.Member, 0, len(members))
	for _, m := range members {
		if m.Guest == 0 {
			ordered = append(ordered, m)
		}
	}
	for _, m := range members {
		if m.Guest != 0 {
			ordered = append(ordered, m)
		}
	}
	return ordered
}

// SetGuestFlag marks or unmarks a member as a guest.
func (s *DirectoryService) SetGuestFlag(ctx context.Context, memberID string, guest bool) error {
	member, err := s.members.GetMemberByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	flag := 0
	if guest {
		flag = 1
	}
	return s.members.SetGuestFlag(ctx, member.ID, flag)
}

// SetToday records a member's decision for today's session. Only in and out
// are settable; records reset to undecided out of band.
func (s *DirectoryService) SetToday(ctx context.Context, username string, today int) error {
	if today != models.TodayIn && today != models.TodayOut {
		return fmt.Errorf("%w: today must be in or out", ErrValidation)
	}
	normalized, ok := util.NormalizeUsername(username)
	if !ok {
		return fmt.Errorf("%w: username", ErrValidation)
	}
	member, err := s.members.GetMemberByUsername(ctx, normalized)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	return s.members.SetToday(ctx, member.ID, today)
}

// MarkAttendance bumps a member's attendance counter.
func (s *DirectoryService) MarkAttendance(ctx context.Context, username string) error {
	normalized, ok := util.NormalizeUsername(username)
	if !ok {
		return fmt.Errorf("%w: username", ErrValidation)
	}
	member, err := s.members.GetMemberByUsername(ctx, normalized)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}

	mu := s.locks.lock("member:" + member.ID)
	defer mu.Unlock()

	member.Attendance++
	return s.members.UpdateMember(ctx, member)
}

// RecoverUsername maps a recovery proof back to a username. Exactly one synced
// member must carry the verified phone; zero matches and multiple matches are
// both reported as no account found, so the response never reveals how many
// records share a number.
func (s *DirectoryService) RecoverUsername(ctx context.Context, proof *models.VerifiedPhone) (string, error) {
	if proof == nil || proof.Purpose != models.PurposeRecovery {
		return "", ErrSessionInvalid
	}

	matches, err := s.members.FindByPhone(ctx, proof.PhoneNumber, true)
	if err != nil {
		return "", err
	}
	if len(matches) != 1 {
		util.Info("Username recovery did not resolve",
			zap.Int("matches", len(matches)))
		return "", ErrNoAccountFound
	}
	return matches[0].Username, nil
}

// SearchRoster finds synced members by name or username. With a search index
// wired it queries Elasticsearch; without one it scans the roster.
func (s *DirectoryService) SearchRoster(ctx context.Context, query string) ([]*models.Member, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrValidation)
	}

	if s.index == nil {
		return s.scanRoster(ctx, query)
	}

	ids, err := s.index.SearchMemberIDs(ctx, query)
	if err != nil {
		util.Warn("Search index query failed, falling back to scan",
			zap.Error(err))
		return s.scanRoster(ctx, query)
	}

	results := make([]*models.Member, 0, len(ids))
	for _, id := range ids {
		m, err := s.members.GetMemberByID(ctx, id)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if m.Syncd == 1 {
			results = append(results, m)
		}
	}
	return results, nil
}

func (s *DirectoryService) scanRoster(ctx context.Context, query string) ([]*models.Member, error) {
	roster, err := s.ListRoster(ctx, SortByOrder)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	results := make([]*models.Member, 0)
	for _, m := range roster {
		if strings.Contains(strings.ToLower(m.FirstName), q) ||
			strings.Contains(strings.ToLower(m.LastName), q) ||
			strings.Contains(strings.ToLower(m.Username), q) {
			results = append(results, m)
		}
	}
	return results, nil
}

func (s *DirectoryService) publish(ctx context.Context, event *client.ClubEvent) {
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
