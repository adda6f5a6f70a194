package recruit

import (
	"context"
	"errors"
	"time"

	"github.com/NicolasHaas/partyvc/pkg/gateway"
)

// Idle detection has two triggers. A Left event on a session channel checks
// the occupants and, if the channel is empty, re-checks once the grace period
// has passed. The periodic sweep checks every session older than the grace
// period. Either may tear a session down; teardown is idempotent, so the
// triggers need no coordination. Deferred re-checks are never cancelled: a
// channel that filled up again is simply found non-empty.

func (e *Engine) onLeft(channelID string) {
	sess, ok := e.store.forChannel(channelID)
	if !ok {
		return
	}
	id := sess.ID
	e.checkEmpty(id, channelID, nil, func() {
		e.metrics.RechecksScheduled.Add(1)
		e.logger.Debug("session channel empty, scheduling re-check", "session", id, "channel", channelID, "after", e.cfg.GracePeriod)
		e.clock.AfterFunc(e.cfg.GracePeriod, func() {
			e.post(func() { e.recheck(id) })
		})
	})
}

func (e *Engine) recheck(sessionID string) {
	sess, ok := e.store.get(sessionID)
	if !ok {
		return
	}
	e.checkEmpty(sessionID, sess.ChannelID, nil, func() {
		e.teardown(sessionID, "idle")
	})
}

// sweep scans all sessions old enough to be reaped and drops expired
// pending joins.
func (e *Engine) sweep(now time.Time) {
	e.metrics.SweepRuns.Add(1)
	e.pruneExpired(now)

	for _, sess := range e.store.byID {
		if now.Sub(sess.CreatedAt) <= e.cfg.GracePeriod {
			continue
		}
		id := sess.ID
		if e.sweeping[id] {
			continue // previous query still outstanding
		}
		e.sweeping[id] = true
		e.checkEmpty(id, sess.ChannelID, func() { delete(e.sweeping, id) }, func() {
			e.teardown(id, "sweep")
		})
	}
}

// checkEmpty queries the channel occupants off the loop. Back on the loop,
// and only if the session still exists, it calls onEmpty when nobody is
// connected. A channel that no longer exists retires the session. always
// runs first on completion when non-nil.
func (e *Engine) checkEmpty(sessionID, channelID string, always, onEmpty func()) {
	spawn(e, func(ctx context.Context) ([]string, error) {
		return e.gw.Occupants(ctx, channelID)
	}, func(occupants []string, err error) {
		if always != nil {
			always()
		}
		if _, ok := e.store.get(sessionID); !ok {
			return
		}
		if err != nil {
			if errors.Is(err, gateway.ErrNotFound) {
				e.retire(sessionID)
				return
			}
			e.metrics.OccupancyErrors.Add(1)
			e.logger.Warn("failed to read occupants", "session", sessionID, "channel", channelID, "err", err)
			return
		}
		if len(occupants) == 0 {
			onEmpty()
		}
	})
}
