package recruit

import (
	"context"
	"sort"
	"time"

	"github.com/NicolasHaas/partyvc/pkg/gateway"
	"github.com/NicolasHaas/partyvc/pkg/model"
)

// HandleOccupancy feeds a voice occupancy event into the engine. It only
// queues the event and may be called from any goroutine.
func (e *Engine) HandleOccupancy(ev gateway.OccupancyEvent) {
	e.post(func() { e.onOccupancy(ev) })
}

func (e *Engine) onOccupancy(ev gateway.OccupancyEvent) {
	switch ev.Kind {
	case gateway.Joined:
		e.reconcile(ev.MemberID)
	case gateway.Left:
		e.onLeft(ev.ChannelID)
	}
}

// addPending registers or replaces the member's join intent.
func (e *Engine) addPending(memberID, sessionID, channelID string) {
	if prev, ok := e.pending[memberID]; ok && prev.SessionID != sessionID {
		e.metrics.PendingSuperseded.Add(1)
	}
	e.pending[memberID] = model.PendingJoin{
		MemberID:   memberID,
		SessionID:  sessionID,
		ChannelID:  channelID,
		AcceptedAt: e.clock.Now(),
	}
	e.metrics.PendingJoins.Store(int64(len(e.pending)))
}

func (e *Engine) dropPending(memberID string) {
	delete(e.pending, memberID)
	e.metrics.PendingJoins.Store(int64(len(e.pending)))
}

// reconcile consumes the member's pending join, if any, and moves them to
// its channel. The entry is gone before the move starts, so one intent
// yields at most one relocation whatever the outcome.
func (e *Engine) reconcile(memberID string) {
	p, ok := e.pending[memberID]
	if !ok {
		return
	}
	e.dropPending(memberID)

	if p.Expired(e.clock.Now(), e.cfg.PendingTTL) {
		e.metrics.PendingExpired.Add(1)
		e.logger.Debug("pending join expired", "member", memberID, "session", p.SessionID)
		return
	}
	if _, alive := e.store.get(p.SessionID); !alive {
		return
	}

	spawn(e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.gw.RelocateMember(ctx, p.MemberID, p.ChannelID)
	}, func(_ struct{}, err error) {
		if err != nil {
			e.metrics.RelocationsFailed.Add(1)
			e.logger.Warn("failed to move member", "member", p.MemberID, "session", p.SessionID, "channel", p.ChannelID, "err", err)
			return
		}
		e.metrics.RelocationsOK.Add(1)
		e.logger.Info("member moved", "member", p.MemberID, "session", p.SessionID, "channel", p.ChannelID)
	})
}

// dropPendingFor removes every intent targeting sessionID.
func (e *Engine) dropPendingFor(sessionID string) {
	for member, p := range e.pending {
		if p.SessionID == sessionID {
			delete(e.pending, member)
		}
	}
	e.metrics.PendingJoins.Store(int64(len(e.pending)))
}

// pruneExpired removes intents older than the TTL.
func (e *Engine) pruneExpired(now time.Time) {
	if e.cfg.PendingTTL <= 0 {
		return
	}
	for member, p := range e.pending {
		if p.Expired(now, e.cfg.PendingTTL) {
			delete(e.pending, member)
			e.metrics.PendingExpired.Add(1)
		}
	}
	e.metrics.PendingJoins.Store(int64(len(e.pending)))
}

// PendingJoins returns the outstanding join intents ordered by member id.
func (e *Engine) PendingJoins(ctx context.Context) ([]model.PendingJoin, error) {
	var out []model.PendingJoin
	err := e.do(ctx, func() {
		for _, p := range e.pending {
			out = append(out, p)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, err
}
