package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr error
	}{
		{"top", RoleTop, nil},
		{"JG", RoleJungle, nil},
		{"jungle", RoleJungle, nil},
		{"mid", RoleMid, nil},
		{"bot", RoleADC, nil},
		{"adc", RoleADC, nil},
		{"support", RoleSupport, nil},
		{"Autofill", RoleFill, nil},
		{"", RoleUnassigned, nil},
		{"tank", RoleUnassigned, ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseRole(%q) err = %v, want %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRole(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRoleValid(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"unassigned", RoleUnassigned, false},
		{"top", RoleTop, true},
		{"fill", RoleFill, true},
		{"negative", Role(-1), false},
		{"large", Role(99), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("Role(%d).Valid() = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestRoleTextRoundTrip(t *testing.T) {
	for _, r := range Roles {
		text, err := r.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", r, err)
		}
		var got Role
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if got != r {
			t.Errorf("round trip %v -> %q -> %v", r, text, got)
		}
	}
	if _, err := Role(42).MarshalText(); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("MarshalText(42) err = %v, want ErrInvalidRole", err)
	}
}

func TestNormalizePurpose(t *testing.T) {
	got, err := NormalizePurpose("  Ranked ")
	if err != nil || got != PurposeRanked {
		t.Fatalf("NormalizePurpose = %q, %v", got, err)
	}
	if _, err := NormalizePurpose(" "); !errors.Is(err, ErrInvalidPurpose) {
		t.Errorf("empty purpose err = %v", err)
	}
	if _, err := NormalizePurpose(strings.Repeat("x", MaxPurposeLength+1)); !errors.Is(err, ErrInvalidPurpose) {
		t.Errorf("long purpose err = %v", err)
	}
}

func TestChannelName(t *testing.T) {
	if got := ChannelName("Faker", PurposeRanked); got != "Faker's Ranked team" {
		t.Errorf("ChannelName = %q", got)
	}
	if got := ChannelName("", "aram"); got != "Someone's aram team" {
		t.Errorf("ChannelName = %q", got)
	}
	long := ChannelName(strings.Repeat("a", 200), PurposeNormal)
	if n := len([]rune(long)); n != MaxChannelNameLength {
		t.Errorf("ChannelName length = %d, want %d", n, MaxChannelNameLength)
	}
}

func TestSessionClone(t *testing.T) {
	s := &Session{
		ID:           "s1",
		Members:      map[string]Role{"a": RoleTop},
		Announcement: &AnnouncementRef{ChannelID: "c", MessageID: "m"},
	}
	c := s.Clone()
	c.Members["b"] = RoleMid
	c.Announcement.MessageID = "other"
	if len(s.Members) != 1 {
		t.Errorf("clone shares members map")
	}
	if s.Announcement.MessageID != "m" {
		t.Errorf("clone shares announcement")
	}
}

func TestSessionFull(t *testing.T) {
	s := &Session{Members: map[string]Role{"a": RoleTop, "b": RoleMid}}
	if s.Full() {
		t.Errorf("unlimited session reported full")
	}
	s.Capacity = 2
	if !s.Full() {
		t.Errorf("session at capacity not reported full")
	}
}

func TestPendingJoinExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := PendingJoin{AcceptedAt: now.Add(-time.Hour)}
	if p.Expired(now, 0) {
		t.Errorf("zero ttl expired")
	}
	if !p.Expired(now, 30*time.Minute) {
		t.Errorf("hour-old intent not expired with 30m ttl")
	}
	if p.Expired(now, 2*time.Hour) {
		t.Errorf("hour-old intent expired with 2h ttl")
	}
}

func TestValidateRank(t *testing.T) {
	tests := []struct {
		name     string
		tier     string
		division int
		wantErr  error
	}{
		{"unranked", "UNRANKED", 0, nil},
		{"gold two", "GOLD", 2, nil},
		{"master", "MASTER", 0, nil},
		{"master with division", "MASTER", 1, ErrDivisionNotAllowed},
		{"gold without division", "GOLD", 0, ErrDivisionRequired},
		{"gold five", "GOLD", 5, ErrDivisionRequired},
		{"unknown", "WOOD", 1, ErrUnknownTier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateRank(tt.tier, tt.division); err != tt.wantErr {
				t.Errorf("ValidateRank(%q, %d) = %v, want %v", tt.tier, tt.division, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSummonerName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr error
	}{
		{"Hide on bush#KR1", nil},
		{"Test#JP1", nil},
		{"NoTag", ErrSummonerNameFormat},
		{"#tag", ErrSummonerNameFormat},
		{"name#", ErrSummonerNameFormat},
		{strings.Repeat("a", 70) + "#x", ErrSummonerNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if err := ValidateSummonerName(tt.input); err != tt.wantErr {
				t.Errorf("ValidateSummonerName(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestProfileRankDisplay(t *testing.T) {
	p := Profile{Tier: "GOLD", Division: 2}
	if got := p.RankDisplay(); got != "GOLD 2" {
		t.Errorf("RankDisplay = %q", got)
	}
	p = Profile{Tier: "CHALLENGER"}
	if got := p.RankDisplay(); got != "CHALLENGER" {
		t.Errorf("RankDisplay = %q", got)
	}
}
