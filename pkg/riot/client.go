// Package riot is a small client for the three Riot Games API lookups the
// bot uses: account by Riot ID, summoner by PUUID and league entries.
package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrNotFound     = errors.New("riot: not found")
	ErrUnauthorized = errors.New("riot: api key rejected")
	ErrRateLimited  = errors.New("riot: rate limited")
)

const (
	// DefaultRegion serves account lookups.
	DefaultRegion = "asia"
	// DefaultPlatform serves summoner and league lookups.
	DefaultPlatform = "jp1"

	// Development keys allow 20 requests per second.
	defaultRate  = 20
	defaultBurst = 20

	QueueRankedSolo = "RANKED_SOLO_5x5"
)

// Account is a Riot account.
type Account struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// Summoner is a League of Legends summoner.
type Summoner struct {
	ID            string `json:"id"`
	PUUID         string `json:"puuid"`
	ProfileIconID int    `json:"profileIconId"`
	SummonerLevel int64  `json:"summonerLevel"`
}

// LeagueEntry is one ranked queue standing.
type LeagueEntry struct {
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"` // I-IV
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// Division converts the roman rank to 1-4. Apex tiers report 0.
func (e LeagueEntry) Division() int {
	switch e.Tier {
	case "MASTER", "GRANDMASTER", "CHALLENGER":
		return 0
	}
	switch e.Rank {
	case "I":
		return 1
	case "II":
		return 2
	case "III":
		return 3
	case "IV":
		return 4
	default:
		return 0
	}
}

// Options configures a Client. Zero values select production endpoints.
type Options struct {
	APIKey          string
	Region          string
	Platform        string
	AccountBaseURL  string // overrides https://{region}.api.riotgames.com
	PlatformBaseURL string // overrides https://{platform}.api.riotgames.com
	HTTPClient      *http.Client
	Limiter         *rate.Limiter
}

// Client calls the Riot API. Requests wait on a shared rate limiter and are
// never retried.
type Client struct {
	apiKey      string
	accountURL  string
	platformURL string
	http        *http.Client
	limiter     *rate.Limiter
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Region == "" {
		opts.Region = DefaultRegion
	}
	if opts.Platform == "" {
		opts.Platform = DefaultPlatform
	}
	if opts.AccountBaseURL == "" {
		opts.AccountBaseURL = "https://" + opts.Region + ".api.riotgames.com"
	}
	if opts.PlatformBaseURL == "" {
		opts.PlatformBaseURL = "https://" + opts.Platform + ".api.riotgames.com"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Limit(defaultRate), defaultBurst)
	}
	return &Client{
		apiKey:      opts.APIKey,
		accountURL:  strings.TrimRight(opts.AccountBaseURL, "/"),
		platformURL: strings.TrimRight(opts.PlatformBaseURL, "/"),
		http:        opts.HTTPClient,
		limiter:     opts.Limiter,
	}
}

// AccountByRiotID resolves "gameName#tagLine". A tag line given with a
// leading name ("name#JP1") is reduced to the tag.
func (c *Client) AccountByRiotID(ctx context.Context, gameName, tagLine string) (Account, error) {
	if _, tag, ok := strings.Cut(tagLine, "#"); ok {
		tagLine = strings.TrimSpace(tag)
	}
	var acc Account
	u := c.accountURL + "/riot/account/v1/accounts/by-riot-id/" +
		url.PathEscape(gameName) + "/" + url.PathEscape(tagLine)
	if err := c.get(ctx, u, &acc); err != nil {
		return Account{}, fmt.Errorf("riot: account %s#%s: %w", gameName, tagLine, err)
	}
	return acc, nil
}

// SummonerByPUUID fetches the summoner for an account.
func (c *Client) SummonerByPUUID(ctx context.Context, puuid string) (Summoner, error) {
	var s Summoner
	u := c.platformURL + "/lol/summoner/v4/summoners/by-puuid/" + url.PathEscape(puuid)
	if err := c.get(ctx, u, &s); err != nil {
		return Summoner{}, fmt.Errorf("riot: summoner: %w", err)
	}
	return s, nil
}

// LeagueEntries lists the ranked standings of a summoner.
func (c *Client) LeagueEntries(ctx context.Context, summonerID string) ([]LeagueEntry, error) {
	var entries []LeagueEntry
	u := c.platformURL + "/lol/league/v4/entries/by-summoner/" + url.PathEscape(summonerID)
	if err := c.get(ctx, u, &entries); err != nil {
		return nil, fmt.Errorf("riot: league entries: %w", err)
	}
	return entries, nil
}

// SoloRank returns the solo queue entry, if any.
func SoloRank(entries []LeagueEntry) (LeagueEntry, bool) {
	for _, e := range entries {
		if e.QueueType == QueueRankedSolo {
			return e, true
		}
	}
	return LeagueEntry{}, false
}

// ProfileIconURL returns the Data Dragon image of a profile icon.
func ProfileIconURL(iconID int) string {
	return fmt.Sprintf("https://ddragon.leagueoflegends.com/cdn/13.24.1/img/profileicon/%d.png", iconID)
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Riot-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
