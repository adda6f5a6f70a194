// Package profile manages members' registered game identities.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/NicolasHaas/partyvc/pkg/model"
	"github.com/NicolasHaas/partyvc/pkg/riot"
)

var (
	ErrAlreadyRegistered = errors.New("profile: already registered, use update_profile")
	ErrNotRegistered     = errors.New("profile: not registered, use register first")
	ErrNothingToUpdate   = errors.New("profile: at least one field must change")
	ErrAccountNotFound   = errors.New("profile: no Riot account with that name")
	ErrNoRankedEntry     = errors.New("profile: no ranked solo queue entry")
	ErrLookupDisabled    = errors.New("profile: stats lookup not configured")
)

// Store persists profiles. GetProfile returns (nil, nil) when absent.
type Store interface {
	GetProfile(ctx context.Context, memberID string) (*model.Profile, error)
	PutProfile(ctx context.Context, profile *model.Profile) error
	DeleteProfile(ctx context.Context, memberID string) (bool, error)
}

// Lookup is the stats service. *riot.Client implements it.
type Lookup interface {
	AccountByRiotID(ctx context.Context, gameName, tagLine string) (riot.Account, error)
	SummonerByPUUID(ctx context.Context, puuid string) (riot.Summoner, error)
	LeagueEntries(ctx context.Context, summonerID string) ([]riot.LeagueEntry, error)
}

// Service validates and stores profiles. Without a Lookup, summoner names
// are accepted unverified.
type Service struct {
	store  Store
	lookup Lookup
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a Service. lookup may be nil.
func NewService(store Store, lookup Lookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		lookup: lookup,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With("component", "profile"),
	}
}

// RegisterRequest carries the /register options.
type RegisterRequest struct {
	MemberID     string
	SummonerName string
	Tier         string
	Division     int
	MainLane     model.Role
}

// Register creates a profile. A member registers once.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*model.Profile, error) {
	existing, err := s.store.GetProfile(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyRegistered
	}

	p := &model.Profile{
		MemberID:     req.MemberID,
		SummonerName: strings.TrimSpace(req.SummonerName),
		Tier:         model.NormalizeTier(req.Tier),
		Division:     req.Division,
		MainLane:     req.MainLane,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.verify(ctx, p); err != nil {
		return nil, err
	}

	p.UpdatedAt = s.now()
	if err := s.store.PutProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("profile: register: %w", err)
	}
	s.logger.Info("profile registered", "member", p.MemberID, "summoner", p.SummonerName, "rank", p.RankDisplay())
	return p, nil
}

// UpdateRequest carries the /update_profile options. Nil fields are kept.
type UpdateRequest struct {
	MemberID     string
	SummonerName *string
	Tier         *string
	Division     *int
	MainLane     *model.Role
}

// Update changes the given fields of an existing profile. A new tier
// without a division clears the division, so apex tiers can be set alone.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*model.Profile, error) {
	if req.SummonerName == nil && req.Tier == nil && req.Division == nil && req.MainLane == nil {
		return nil, ErrNothingToUpdate
	}
	p, err := s.store.GetProfile(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotRegistered
	}

	renamed := false
	if req.SummonerName != nil {
		name := strings.TrimSpace(*req.SummonerName)
		renamed = name != p.SummonerName
		p.SummonerName = name
	}
	if req.Tier != nil {
		p.Tier = model.NormalizeTier(*req.Tier)
		p.Division = 0
	}
	if req.Division != nil {
		p.Division = *req.Division
	}
	if req.MainLane != nil {
		p.MainLane = *req.MainLane
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if renamed {
		p.PUUID = ""
		if err := s.verify(ctx, p); err != nil {
			return nil, err
		}
	}

	p.UpdatedAt = s.now()
	if err := s.store.PutProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("profile: update: %w", err)
	}
	return p, nil
}

// Get returns a member's profile or ErrNotRegistered.
func (s *Service) Get(ctx context.Context, memberID string) (*model.Profile, error) {
	p, err := s.store.GetProfile(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotRegistered
	}
	return p, nil
}

// Unregister deletes a profile.
func (s *Service) Unregister(ctx context.Context, memberID string) error {
	deleted, err := s.store.DeleteProfile(ctx, memberID)
	if err != nil {
		return fmt.Errorf("profile: unregister: %w", err)
	}
	if !deleted {
		return ErrNotRegistered
	}
	s.logger.Info("profile removed", "member", memberID)
	return nil
}

// RefreshRank replaces the stored rank with the solo queue standing
// reported by the stats service.
func (s *Service) RefreshRank(ctx context.Context, memberID string) (*model.Profile, error) {
	if s.lookup == nil {
		return nil, ErrLookupDisabled
	}
	p, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if p.PUUID == "" {
		if err := s.verify(ctx, p); err != nil {
			return nil, err
		}
	}

	summ, err := s.lookup.SummonerByPUUID(ctx, p.PUUID)
	if err != nil {
		return nil, fmt.Errorf("profile: refresh rank: %w", err)
	}
	entries, err := s.lookup.LeagueEntries(ctx, summ.ID)
	if err != nil {
		return nil, fmt.Errorf("profile: refresh rank: %w", err)
	}
	solo, ok := riot.SoloRank(entries)
	if !ok {
		return nil, ErrNoRankedEntry
	}
	p.Tier = model.NormalizeTier(solo.Tier)
	p.Division = solo.Division()
	if err := model.ValidateRank(p.Tier, p.Division); err != nil {
		return nil, err
	}

	p.UpdatedAt = s.now()
	if err := s.store.PutProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("profile: refresh rank: %w", err)
	}
	return p, nil
}

// verify resolves the summoner name to a PUUID when a lookup is configured.
func (s *Service) verify(ctx context.Context, p *model.Profile) error {
	if s.lookup == nil {
		return nil
	}
	game, tag := model.SplitSummonerName(p.SummonerName)
	acc, err := s.lookup.AccountByRiotID(ctx, game, tag)
	if errors.Is(err, riot.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("profile: verify account: %w", err)
	}
	p.PUUID = acc.PUUID
	return nil
}
