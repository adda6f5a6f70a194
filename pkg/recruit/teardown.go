package recruit

import (
	"context"
	"errors"
	"fmt"

	"github.com/NicolasHaas/partyvc/pkg/gateway"
	"github.com/NicolasHaas/partyvc/pkg/model"
)

// Teardown ends a session: the record is removed first, then the
// announcement is closed and the channel deleted in the background. Side
// effect failures are logged and never bring the record back. It reports
// false without error when the session is already gone.
func (e *Engine) Teardown(ctx context.Context, sessionID string) (bool, error) {
	var removed bool
	if err := e.do(ctx, func() {
		removed = e.teardown(sessionID, "manual")
	}); err != nil {
		return false, fmt.Errorf("recruit: teardown: %w", err)
	}
	return removed, nil
}

// teardown must run on the loop.
func (e *Engine) teardown(sessionID, reason string) bool {
	sess, ok := e.remove(sessionID)
	if !ok {
		return false
	}
	e.metrics.SessionsTornDown.Add(1)
	e.logger.Info("session torn down", "session", sess.ID, "channel", sess.ChannelID, "reason", reason)
	e.cleanup(sess, true)
	return true
}

// retire removes a session whose channel no longer exists. No delete call
// is issued.
func (e *Engine) retire(sessionID string) bool {
	sess, ok := e.remove(sessionID)
	if !ok {
		return false
	}
	e.metrics.SessionsRetired.Add(1)
	e.logger.Info("session retired, channel missing", "session", sess.ID, "channel", sess.ChannelID)
	e.cleanup(sess, false)
	return true
}

func (e *Engine) remove(sessionID string) (model.Session, bool) {
	sess, ok := e.store.remove(sessionID)
	if !ok {
		return model.Session{}, false
	}
	e.dropPendingFor(sessionID)
	e.saveState()
	return sess, true
}

type cleanupResult struct {
	announcementErr error
	deleteErr       error
}

// cleanup closes the announcement and optionally deletes the channel, off
// the loop, once per removed session.
func (e *Engine) cleanup(sess model.Session, deleteChannel bool) {
	ref := sess.Announcement
	channelID := sess.ChannelID
	spawn(e, func(ctx context.Context) (cleanupResult, error) {
		var res cleanupResult
		if ref != nil {
			res.announcementErr = e.gw.CloseAnnouncement(ctx, *ref)
		}
		if deleteChannel {
			res.deleteErr = e.gw.DeleteVoiceChannel(ctx, channelID)
		}
		return res, nil
	}, func(res cleanupResult, _ error) {
		if res.announcementErr != nil {
			e.metrics.AnnouncementFailures.Add(1)
			e.logger.Warn("failed to close announcement", "session", sess.ID, "message", ref.MessageID, "err", res.announcementErr)
		}
		if res.deleteErr != nil && !errors.Is(res.deleteErr, gateway.ErrNotFound) {
			e.metrics.DeleteFailures.Add(1)
			e.logger.Warn("failed to delete channel", "session", sess.ID, "channel", channelID, "err", res.deleteErr)
		}
	})
}

// Prune retires every session whose channel no longer exists and returns
// how many were removed.
func (e *Engine) Prune(ctx context.Context) (int, error) {
	sessions, err := e.Sessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("recruit: prune: %w", err)
	}

	var stale []string
	for _, sess := range sessions {
		if _, err := e.gw.Occupants(ctx, sess.ChannelID); errors.Is(err, gateway.ErrNotFound) {
			stale = append(stale, sess.ID)
		} else if err != nil {
			e.logger.Warn("prune: failed to read occupants", "session", sess.ID, "channel", sess.ChannelID, "err", err)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	removed := 0
	if err := e.do(ctx, func() {
		for _, id := range stale {
			if e.retire(id) {
				removed++
			}
		}
	}); err != nil {
		return 0, fmt.Errorf("recruit: prune: %w", err)
	}
	e.logger.Info("pruned sessions", "count", removed)
	return removed, nil
}
