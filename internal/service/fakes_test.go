package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"club-ledger/internal/client"
	"club-ledger/internal/models"
	redisrepo "club-ledger/internal/repository/redis"
	"club-ledger/internal/repository/scylla"
)

// fakeMemberRepo is an in-memory MemberRepository for service tests.
type fakeMemberRepo struct {
	mu      sync.Mutex
	members map[string]*models.Member
	nextID  int
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{members: make(map[string]*models.Member)}
}

func (r *fakeMemberRepo) CreateMember(_ context.Context, member *models.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.Username == member.Username {
			return scylla.ErrUsernameTaken
		}
	}
	if member.ID == "" {
		r.nextID++
		member.ID = fmt.Sprintf("member-%d", r.nextID)
	}
	cp := *member
	r.members[member.ID] = &cp
	return nil
}

func (r *fakeMemberRepo) GetMemberByID(_ context.Context, memberID string) (*models.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[memberID]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMemberRepo) GetMemberByUsername(_ context.Context, username string) (*models.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.Username == username {
			cp := *m
			return &cp, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (r *fakeMemberRepo) ListMembers(_ context.Context) ([]*models.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Member, 0, len(r.members))
	for _, m := range r.members {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeMemberRepo) FindByPhone(_ context.Context, phoneNumber string, syncdOnly bool) ([]*models.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Member, 0)
	for _, m := range r.members {
		if m.PhoneNumber != phoneNumber {
			continue
		}
		if syncdOnly && m.Syncd != 1 {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeMemberRepo) UpdateMember(_ context.Context, member *models.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[member.ID]; !ok {
		return scylla.ErrNotFound
	}
	cp := *member
	r.members[member.ID] = &cp
	return nil
}

func (r *fakeMemberRepo) UpdatePassword(_ context.Context, memberID, passwordHash string) error {
	return r.mutate(memberID, func(m *models.Member) { m.PasswordHash = passwordHash })
}

func (r *fakeMemberRepo) UpdatePermit(_ context.Context, memberID string, permit int) error {
	return r.mutate(memberID, func(m *models.Member) { m.Permit = permit })
}

func (r *fakeMemberRepo) PromoteToSynced(_ context.Context, memberID string) error {
	return r.mutate(memberID, func(m *models.Member) { m.Syncd = 1 })
}

func (r *fakeMemberRepo) SetGuestFlag(_ context.Context, memberID string, guest int) error {
	return r.mutate(memberID, func(m *models.Member) { m.Guest = guest })
}

func (r *fakeMemberRepo) SetToday(_ context.Context, memberID string, today int) error {
	return r.mutate(memberID, func(m *models.Member) { m.Today = today })
}

func (r *fakeMemberRepo) SetOrderIndex(_ context.Context, memberID string, orderIndex int) error {
	return r.mutate(memberID, func(m *models.Member) { m.OrderIndex = orderIndex })
}

func (r *fakeMemberRepo) DeleteMember(_ context.Context, member *models.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[member.ID]; !ok {
		return scylla.ErrNotFound
	}
	delete(r.members, member.ID)
	return nil
}

func (r *fakeMemberRepo) HealthCheck(_ context.Context) error { return nil }

func (r *fakeMemberRepo) mutate(memberID string, fn func(*models.Member)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[memberID]
	if !ok {
		return scylla.ErrNotFound
	}
	fn(m)
	return nil
}

type fakeManagementRepo struct {
	mu  sync.Mutex
	cfg *models.ManagementConfig
}

func newFakeManagementRepo(cfg *models.ManagementConfig) *fakeManagementRepo {
	if cfg == nil {
		cfg = models.DefaultManagementConfig()
	}
	return &fakeManagementRepo{cfg: cfg}
}

func (r *fakeManagementRepo) Fetch(_ context.Context) (*models.ManagementConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.cfg
	return &cp, nil
}

func (r *fakeManagementRepo) Update(_ context.Context, cfg *models.ManagementConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cfg
	r.cfg = &cp
	return nil
}

func (r *fakeManagementRepo) SeedDefault(_ context.Context) error { return nil }

type fakeDuesRepo struct {
	mu      sync.Mutex
	records map[string][]int
}

func newFakeDuesRepo() *fakeDuesRepo {
	return &fakeDuesRepo{records: make(map[string][]int)}
}

func (r *fakeDuesRepo) GetMonthlyFields(_ context.Context, username string) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.PadMonths(r.records[username]), nil
}

func (r *fakeDuesRepo) SetMonthlyFields(_ context.Context, username string, values []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[username] = models.PadMonths(values)
	return nil
}

func (r *fakeDuesRepo) DeleteRecord(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, username)
	return nil
}

// fakeSessionStore keeps verification sessions in memory with the same
// single-flight behavior as the redis cache.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.VerificationSession
	byPhone  map[string]string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[string]*models.VerificationSession),
		byPhone:  make(map[string]string),
	}
}

func (s *fakeSessionStore) Save(_ context.Context, session *models.VerificationSession, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if oldID, ok := s.byPhone[session.PhoneNumber]; ok {
		delete(s.sessions, oldID)
	}
	cp := *session
	s.sessions[session.VerificationID] = &cp
	s.byPhone[session.PhoneNumber] = session.VerificationID
	return nil
}

func (s *fakeSessionStore) Get(_ context.Context, verificationID string) (*models.VerificationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[verificationID]
	if !ok {
		return nil, redisrepo.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeSessionStore) Update(_ context.Context, session *models.VerificationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.VerificationID]; !ok {
		return redisrepo.ErrSessionNotFound
	}
	cp := *session
	s.sessions[session.VerificationID] = &cp
	return nil
}

func (s *fakeSessionStore) Delete(_ context.Context, session *models.VerificationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session.VerificationID)
	delete(s.byPhone, session.PhoneNumber)
	return nil
}

// recordingProvider captures outbound codes instead of sending them.
type recordingProvider struct {
	mu    sync.Mutex
	sends []sentCode
	err   error
}

type sentCode struct {
	phone string
	code  string
}

func (p *recordingProvider) SendCode(_ context.Context, phoneNumber, code string) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends = append(p.sends, sentCode{phone: phoneNumber, code: code})
	return nil
}

func (p *recordingProvider) lastCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sends) == 0 {
		return ""
	}
	return p.sends[len(p.sends)-1].code
}

// recordingPublisher captures club events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*client.ClubEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event *client.ClubEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
