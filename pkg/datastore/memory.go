package datastore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/partyvc/pkg/model"
)

var ErrTxDone = errors.New("datastore: transaction already finished")

// MemoryStore provides an in-memory DataStore implementation for tests and
// runs without a database file. It mirrors SQLite behavior for validation and
// error handling.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	sessions map[string]model.Session
	profiles map[string]model.Profile
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:      now,
		sessions: make(map[string]model.Session),
		profiles: make(map[string]model.Profile),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) NonTx() DataStore {
	return &memoryProvider{store: s}
}

// Tx stages writes on a copy of the store and applies them on Commit.
func (s *MemoryStore) Tx(_ context.Context) (DataStoreTx, error) {
	s.mu.RLock()
	staged := &MemoryStore{
		now:      s.now,
		sessions: maps.Clone(s.sessions),
		profiles: maps.Clone(s.profiles),
	}
	s.mu.RUnlock()
	return &memoryTx{memoryProvider: memoryProvider{store: staged}, parent: s}, nil
}

// LoadSessions returns the stored session set.
func (s *MemoryStore) LoadSessions(ctx context.Context) ([]model.Session, error) {
	return s.NonTx().ListSessions(ctx)
}

// SaveSessions replaces the stored session set.
func (s *MemoryStore) SaveSessions(ctx context.Context, sessions []model.Session) error {
	return s.NonTx().ReplaceSessions(ctx, sessions)
}

type memoryProvider struct {
	store *MemoryStore
}

type memoryTx struct {
	memoryProvider
	parent *MemoryStore
	done   bool
}

func (t *memoryTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	staged := t.store
	staged.mu.RLock()
	sessions, profiles := staged.sessions, staged.profiles
	staged.mu.RUnlock()

	t.parent.mu.Lock()
	t.parent.sessions = sessions
	t.parent.profiles = profiles
	t.parent.mu.Unlock()
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return nil
}

// ListSessions returns copies of all sessions ordered by creation time.
func (p *memoryProvider) ListSessions(_ context.Context) ([]model.Session, error) {
	s := p.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess.Clone())
	}
	sortSessions(sessions)
	return sessions, nil
}

// ReplaceSessions swaps the session set. Channel ids must be unique, as the
// SQLite schema requires.
func (p *memoryProvider) ReplaceSessions(_ context.Context, sessions []model.Session) error {
	next := make(map[string]model.Session, len(sessions))
	channels := make(map[string]bool, len(sessions))
	for _, sess := range sessions {
		if channels[sess.ChannelID] {
			return fmt.Errorf("datastore: insert session %s: duplicate channel %s", sess.ID, sess.ChannelID)
		}
		if _, ok := next[sess.ID]; ok {
			return fmt.Errorf("datastore: insert session %s: duplicate id", sess.ID)
		}
		channels[sess.ChannelID] = true
		next[sess.ID] = sess.Clone()
	}

	s := p.store
	s.mu.Lock()
	s.sessions = next
	s.mu.Unlock()
	return nil
}

// GetProfile retrieves a member's profile. Returns (nil, nil) if not found.
func (p *memoryProvider) GetProfile(_ context.Context, memberID string) (*model.Profile, error) {
	s := p.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	prof, ok := s.profiles[memberID]
	if !ok {
		return nil, nil
	}
	return &prof, nil
}

// ListProfiles returns all profiles ordered by member id.
func (p *memoryProvider) ListProfiles(_ context.Context) ([]model.Profile, error) {
	s := p.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make([]model.Profile, 0, len(s.profiles))
	for _, prof := range s.profiles {
		profiles = append(profiles, prof)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].MemberID < profiles[j].MemberID })
	return profiles, nil
}

// PutProfile validates and upserts a profile.
func (p *memoryProvider) PutProfile(_ context.Context, profile *model.Profile) error {
	if profile.MemberID == "" {
		return fmt.Errorf("datastore: put profile: empty member id")
	}
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("datastore: put profile: %w", err)
	}

	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = s.now()
	}
	s.profiles[profile.MemberID] = *profile
	return nil
}

// DeleteProfile removes a member's profile.
func (p *memoryProvider) DeleteProfile(_ context.Context, memberID string) (bool, error) {
	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[memberID]; !ok {
		return false, nil
	}
	delete(s.profiles, memberID)
	return true, nil
}
