package datastore

import (
	"context"

	"github.com/NicolasHaas/partyvc/pkg/model"
)

// DataProviderFactory hands out providers over one underlying store.
type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
	Close() error
}

type DataStoreTx interface {
	DataStore
	Rollback() error
	Commit() error
}

// DataStore is the persistence surface for session and profile documents.
// Implementations include the SQLite store and the in-memory store used by
// tests and offline runs.
type DataStore interface {
	SessionReadProvider
	SessionWriteProvider

	ProfileReadProvider
	ProfileWriteProvider
}

// Compile-time checks.
var (
	_ DataProviderFactory = (*ProviderFactory)(nil)
	_ DataProviderFactory = (*MemoryStore)(nil)
)

type SessionReadProvider interface {
	// ListSessions returns every stored session ordered by creation time.
	ListSessions(ctx context.Context) ([]model.Session, error)
}

type SessionWriteProvider interface {
	// ReplaceSessions swaps the stored session set for sessions.
	ReplaceSessions(ctx context.Context, sessions []model.Session) error
}

type ProfileReadProvider interface {
	// GetProfile returns (nil, nil) when the member has no profile.
	GetProfile(ctx context.Context, memberID string) (*model.Profile, error)
	ListProfiles(ctx context.Context) ([]model.Profile, error)
}

type ProfileWriteProvider interface {
	PutProfile(ctx context.Context, profile *model.Profile) error
	// DeleteProfile reports whether a profile existed.
	DeleteProfile(ctx context.Context, memberID string) (bool, error)
}
