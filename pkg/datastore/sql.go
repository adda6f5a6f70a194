package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/partyvc/pkg/codec"
	"github.com/NicolasHaas/partyvc/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type baseProvider struct {
	DB
}

type nonTxProvider struct {
	baseProvider
}

type txProvider struct {
	baseProvider
	tx *sql.Tx
}

func (c *txProvider) Rollback() error {
	return c.tx.Rollback()
}

func (c *txProvider) Commit() error {
	return c.tx.Commit()
}

// ProviderFactory provides SQLite access for session and profile documents.
type ProviderFactory struct {
	DB *sql.DB
}

func (sf *ProviderFactory) NonTx() DataStore {
	return &nonTxProvider{
		baseProvider: baseProvider{
			DB: sf.DB,
		},
	}
}

func (sf *ProviderFactory) Tx(ctx context.Context) (DataStoreTx, error) {
	tx, err := sf.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &txProvider{
		baseProvider: baseProvider{
			DB: tx,
		},
		tx: tx,
	}, nil
}

// NewProviderFactory opens (or creates) a SQLite database and runs migrations.
func NewProviderFactory(dbPath string) (*ProviderFactory, error) {
	DB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}

	ctx := context.Background()

	// WAL keeps profile reads from blocking on the session writer
	if _, err := DB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	if _, err := DB.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &ProviderFactory{DB: DB}
	if err := s.migrate(ctx); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (sf *ProviderFactory) Close() error {
	return sf.DB.Close()
}

func (sf *ProviderFactory) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT NOT NULL PRIMARY KEY,
		channel_id TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		body       BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		member_id  TEXT NOT NULL PRIMARY KEY,
		updated_at TEXT NOT NULL,
		body       BLOB NOT NULL
	);
	`
	if err := sf.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := sf.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS sessions_created_at ON sessions (created_at)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := sf.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := sf.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (sf *ProviderFactory) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := sf.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := sf.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := sf.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (sf *ProviderFactory) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := sf.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (sf *ProviderFactory) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := sf.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func (sf *ProviderFactory) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := sf.DB.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("datastore: migrate: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

// ---- Sessions ----

// ListSessions decodes every stored session document.
func (s *baseProvider) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := s.QueryContext(ctx, "SELECT id, body FROM sessions ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("datastore: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []model.Session
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("datastore: scan session: %w", err)
		}
		var sess model.Session
		if err := codec.Unmarshal(body, &sess); err != nil {
			return nil, fmt.Errorf("datastore: decode session %s: %w", id, err)
		}
		if sess.Members == nil {
			sess.Members = make(map[string]model.Role)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ReplaceSessions deletes all stored sessions and inserts the given set.
// Call it on a Tx provider so readers never observe a partial set.
func (s *baseProvider) ReplaceSessions(ctx context.Context, sessions []model.Session) error {
	if _, err := s.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("datastore: clear sessions: %w", err)
	}
	for _, sess := range sessions {
		body, err := codec.Marshal(sess)
		if err != nil {
			return fmt.Errorf("datastore: encode session %s: %w", sess.ID, err)
		}
		if _, err := s.ExecContext(ctx,
			"INSERT INTO sessions (id, channel_id, created_at, body) VALUES (?, ?, ?, ?)",
			sess.ID, sess.ChannelID, sess.CreatedAt.UTC().Format(time.RFC3339Nano), body); err != nil {
			return fmt.Errorf("datastore: insert session %s: %w", sess.ID, err)
		}
	}
	return nil
}

// LoadSessions returns the durable session set.
func (sf *ProviderFactory) LoadSessions(ctx context.Context) ([]model.Session, error) {
	return sf.NonTx().ListSessions(ctx)
}

// SaveSessions atomically replaces the durable session set.
func (sf *ProviderFactory) SaveSessions(ctx context.Context, sessions []model.Session) error {
	tx, err := sf.Tx(ctx)
	if err != nil {
		return fmt.Errorf("datastore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.ReplaceSessions(ctx, sessions); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("datastore: commit: %w", err)
	}
	return nil
}

// ---- Profiles ----

// GetProfile retrieves a member's profile. Returns (nil, nil) if not found.
func (s *baseProvider) GetProfile(ctx context.Context, memberID string) (*model.Profile, error) {
	var body []byte
	err := s.QueryRowContext(ctx, "SELECT body FROM profiles WHERE member_id = ?", memberID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get profile: %w", err)
	}
	p := &model.Profile{}
	if err := codec.Unmarshal(body, p); err != nil {
		return nil, fmt.Errorf("datastore: decode profile %s: %w", memberID, err)
	}
	return p, nil
}

// ListProfiles returns all profiles ordered by member id.
func (s *baseProvider) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := s.QueryContext(ctx, "SELECT member_id, body FROM profiles ORDER BY member_id")
	if err != nil {
		return nil, fmt.Errorf("datastore: list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []model.Profile
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("datastore: scan profile: %w", err)
		}
		var p model.Profile
		if err := codec.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("datastore: decode profile %s: %w", id, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// PutProfile validates and upserts a profile.
func (s *baseProvider) PutProfile(ctx context.Context, profile *model.Profile) error {
	if profile.MemberID == "" {
		return fmt.Errorf("datastore: put profile: empty member id")
	}
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("datastore: put profile: %w", err)
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now().UTC()
	}
	body, err := codec.Marshal(profile)
	if err != nil {
		return fmt.Errorf("datastore: encode profile: %w", err)
	}
	_, err = s.ExecContext(ctx,
		`INSERT INTO profiles (member_id, updated_at, body) VALUES (?, ?, ?)
		 ON CONFLICT(member_id) DO UPDATE SET updated_at = excluded.updated_at, body = excluded.body`,
		profile.MemberID, formatDBTime(profile.UpdatedAt), body)
	if err != nil {
		return fmt.Errorf("datastore: put profile: %w", err)
	}
	return nil
}

// DeleteProfile removes a member's profile.
func (s *baseProvider) DeleteProfile(ctx context.Context, memberID string) (bool, error) {
	res, err := s.ExecContext(ctx, "DELETE FROM profiles WHERE member_id = ?", memberID)
	if err != nil {
		return false, fmt.Errorf("datastore: delete profile: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func sortSessions(sessions []model.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
