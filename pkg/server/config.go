package server

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/partyvc/pkg/model"
	"github.com/NicolasHaas/partyvc/pkg/recruit"
)

// Config holds bot configuration, read from a YAML file.
type Config struct {
	GuildID  string `yaml:"guild_id"`
	Category string `yaml:"category_id"` // parent of created voice channels
	// Announcements maps a purpose to the text channel its recruitments are
	// posted in. Create commands for a configured purpose are only accepted
	// in that channel.
	Announcements  map[string]string `yaml:"announcement_channels,omitempty"`
	RequireProfile bool              `yaml:"require_profile"`

	GracePeriod   time.Duration `yaml:"grace_period"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	PendingTTL    time.Duration `yaml:"pending_ttl"`
	CallTimeout   time.Duration `yaml:"call_timeout"`

	DBPath             string        `yaml:"db_path"`
	MetricsAddr        string        `yaml:"metrics_addr"` // empty = disabled
	MetricsLogInterval time.Duration `yaml:"metrics_log_interval"`

	RiotRegion   string `yaml:"riot_region,omitempty"`
	RiotPlatform string `yaml:"riot_platform,omitempty"`
}

// Secrets come from the environment, never from the config file.
type Secrets struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`
	RiotAPIKey   string `env:"RIOT_API_KEY"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	rc := recruit.DefaultConfig()
	return Config{
		RequireProfile:     true,
		GracePeriod:        rc.GracePeriod,
		SweepInterval:      rc.SweepInterval,
		PendingTTL:         rc.PendingTTL,
		CallTimeout:        rc.CallTimeout,
		DBPath:             "partyvc.db",
		MetricsAddr:        ":9602",
		MetricsLogInterval: 60 * time.Second,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML data over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields and timing bounds.
func (c *Config) Validate() error {
	var errs []error
	if c.GuildID == "" {
		errs = append(errs, errors.New("guild_id is required"))
	}
	if c.GracePeriod <= 0 {
		errs = append(errs, errors.New("grace_period must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}
	if c.PendingTTL < 0 {
		errs = append(errs, errors.New("pending_ttl must not be negative"))
	}
	normalized := make(map[string]string, len(c.Announcements))
	for purpose, channel := range c.Announcements {
		p, err := model.NormalizePurpose(purpose)
		if err != nil {
			errs = append(errs, fmt.Errorf("announcement_channels[%q]: %w", purpose, err))
			continue
		}
		normalized[p] = channel
	}
	c.Announcements = normalized
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// EngineConfig returns the recruitment engine settings.
func (c Config) EngineConfig() recruit.Config {
	rc := recruit.DefaultConfig()
	rc.GracePeriod = c.GracePeriod
	rc.SweepInterval = c.SweepInterval
	rc.PendingTTL = c.PendingTTL
	if c.CallTimeout > 0 {
		rc.CallTimeout = c.CallTimeout
	}
	rc.Category = c.Category
	return rc
}

// SessionYAML represents a session in YAML export.
type SessionYAML struct {
	ID           string            `yaml:"id"`
	Creator      string            `yaml:"creator"`
	Purpose      string            `yaml:"purpose"`
	Title        string            `yaml:"title,omitempty"`
	Channel      string            `yaml:"channel"`
	Capacity     int               `yaml:"capacity,omitempty"`
	Members      map[string]string `yaml:"members"`
	CreatedAt    string            `yaml:"created_at"`
	Announcement string            `yaml:"announcement,omitempty"` // channel/message
}

// SessionsExport is the top-level YAML for session export.
type SessionsExport struct {
	Sessions []SessionYAML `yaml:"sessions"`
}

// ExportSessionsYAML exports sessions as YAML.
func ExportSessionsYAML(sessions []model.Session) ([]byte, error) {
	export := SessionsExport{Sessions: []SessionYAML{}}
	for _, s := range sessions {
		entry := SessionYAML{
			ID:        s.ID,
			Creator:   s.CreatorID,
			Purpose:   s.Purpose,
			Title:     s.Title,
			Channel:   s.ChannelID,
			Capacity:  s.Capacity,
			Members:   make(map[string]string, len(s.Members)),
			CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		}
		for member, role := range s.Members {
			entry.Members[member] = role.String()
		}
		if s.Announcement != nil {
			entry.Announcement = s.Announcement.ChannelID + "/" + s.Announcement.MessageID
		}
		export.Sessions = append(export.Sessions, entry)
	}
	return yaml.Marshal(&export)
}

// ProfileYAML represents a profile in YAML export.
type ProfileYAML struct {
	Member   string `yaml:"member"`
	Summoner string `yaml:"summoner"`
	Rank     string `yaml:"rank"`
	MainLane string `yaml:"main_lane,omitempty"`
}

// ProfilesExport is the top-level YAML for profile export.
type ProfilesExport struct {
	Profiles []ProfileYAML `yaml:"profiles"`
}

// ExportProfilesYAML exports profiles as YAML, ordered by member id.
func ExportProfilesYAML(profiles []model.Profile) ([]byte, error) {
	sorted := append([]model.Profile(nil), profiles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MemberID < sorted[j].MemberID })

	export := ProfilesExport{Profiles: []ProfileYAML{}}
	for i := range sorted {
		p := &sorted[i]
		entry := ProfileYAML{
			Member:   p.MemberID,
			Summoner: p.SummonerName,
			Rank:     p.RankDisplay(),
		}
		if p.MainLane.Valid() {
			entry.MainLane = p.MainLane.String()
		}
		export.Profiles = append(export.Profiles, entry)
	}
	return yaml.Marshal(&export)
}
