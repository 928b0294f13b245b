package monitor

import (
	"context"
	"sync/atomic"
	"time"
)

// poller is the fallback sweep that catches messages the push stream
// missed. One goroutine, fixed interval, never overlapping cycles.
type poller struct {
	m        *Monitor
	inFlight atomic.Bool
}

func (p *poller) init(m *Monitor) {
	p.m = m
}

func (p *poller) run(ctx context.Context) {
	// first sweep soon after start, then steady-state interval
	kick := time.NewTimer(p.m.cfg.PollKick)
	defer kick.Stop()
	select {
	case <-ctx.Done():
		return
	case <-kick.C:
		p.cycle(ctx)
	}

	ticker := time.NewTicker(p.m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle sweeps every tracked channel through every healthy session. A tick
// arriving while the previous cycle is still running is skipped.
func (p *poller) cycle(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.m.logger.Debug("previous poll cycle still running, skipping tick")
		pollSkipped.Inc()
		return
	}
	defer p.inFlight.Store(false)

	ctx, span := tracer.Start(ctx, "pollCycle")
	defer span.End()
	pollCycles.Inc()

	if err := p.m.refreshConfig(ctx); err != nil {
		p.m.logger.Warn("poll cycle could not refresh configuration", "err", err)
	}

	tracked, _, _, _ := p.m.matchInputs()
	if len(tracked) == 0 {
		return
	}

	for _, sess := range p.m.pool.Connected() {
		for _, ref := range tracked {
			if ctx.Err() != nil {
				return
			}
			key := string(ref)
			cursor := sess.Cursor(key)
			if cursor == 0 {
				if saved, err := p.m.readCursor(ctx, sess.AccountID, key); err != nil {
					p.m.logger.Warn("cursor restore failed", "account", sess.AccountID, "channel", ref, "err", err)
				} else if saved > 0 {
					sess.AdvanceCursor(key, saved)
					cursor = saved
				}
			}

			msgs, err := sess.Client().Messages(ctx, ref, cursor, p.m.cfg.PollPageSize)
			if err != nil {
				p.m.logger.Warn("channel poll failed", "account", sess.AccountID, "channel", ref, "err", err)
				pollErrors.Inc()
				continue
			}
			if len(msgs) == 0 {
				continue
			}

			// oldest first; the cursor advances past every message we saw,
			// matched or not
			for _, msg := range msgs {
				sess.AdvanceCursor(key, msg.MessageID)
				p.m.processMessage(ctx, sess.AccountID, "poll", msg)
			}

			if err := p.m.persistCursor(ctx, sess.AccountID, key, sess.Cursor(key)); err != nil {
				p.m.logger.Warn("cursor persist failed", "account", sess.AccountID, "channel", ref, "err", err)
			}
		}
	}
}
