// Package version holds build information injected via ldflags:
//
//	go build -ldflags "-X github.com/NicolasHaas/partyvc/pkg/version.tag=v0.3.0
//	  -X github.com/NicolasHaas/partyvc/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/partyvc/pkg/version.date=2026-10-01"
package version

import "log/slog"

var (
	tag    = ""
	commit = "unknown"
	date   = "unknown"
)

// String returns the tag, the commit, or "dev" for local builds.
func String() string {
	switch {
	case tag != "":
		return tag
	case commit != "unknown":
		return commit
	default:
		return "dev"
	}
}

// Full adds commit and build date to String when known.
func Full() string {
	switch {
	case tag != "":
		return tag + " (" + commit + ") built " + date
	case commit != "unknown":
		return commit + " built " + date
	default:
		return "dev"
	}
}

// LogAttrs describes the build for a startup log line.
func LogAttrs() []any {
	return []any{slog.String("version", String()), slog.String("commit", commit), slog.String("built", date)}
}
