package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/normanking/jarvis/internal/bus"
)

// ErrDrainInProgress is returned by Drain while another drain runs.
var ErrDrainInProgress = errors.New("gateway: queue drain already in progress")

// drainTimeout bounds a background drain.
const drainTimeout = 2 * time.Minute

// DefaultDrainReserve is the share of a 60-unit window kept for live turns.
const DefaultDrainReserve = 20

// stoppedReserve is reported when a pass ends to keep quota for live requests.
const stoppedReserve = "quota reserve reached"

// DrainResult summarizes one pass over the offline queue.
type DrainResult struct {
	Replayed  int    `json:"replayed"`
	Dropped   int    `json:"dropped"`
	Remaining int    `json:"remaining"`
	Stopped   string `json:"stopped,omitempty"` // why the pass ended early
}

// Drain replays the offline queue oldest first. Completions are re-issued
// through the normal quota, credential and retry path without re-queueing;
// classifications are dropped since their voice turn is over. An entry is
// removed only after it succeeds or is dropped, so delivery is at least once.
// The first failed replay ends the pass and is reported in Stopped. A pass
// also stops before a replay would leave fewer than DrainReserve units in
// the current quota window; the rest waits for a later drain.
func (g *Gateway) Drain(ctx context.Context) (DrainResult, error) {
	if !g.beginDrain() {
		return DrainResult{}, ErrDrainInProgress
	}
	defer g.endDrain()
	return g.drain(ctx)
}

func (g *Gateway) beginDrain() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draining {
		return false
	}
	g.draining = true
	return true
}

func (g *Gateway) endDrain() {
	g.mu.Lock()
	g.draining = false
	g.mu.Unlock()
}

// startDrain launches a background drain unless one is running or the
// gateway is closed.
func (g *Gateway) startDrain() {
	g.mu.Lock()
	if g.closed || g.draining {
		g.mu.Unlock()
		return
	}
	g.draining = true
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer g.endDrain()

		ctx, cancel := context.WithTimeout(g.baseCtx, drainTimeout)
		defer cancel()

		res, err := g.drain(ctx)
		if err != nil {
			g.logger.Warn().Err(err).Msg("background queue drain failed")
			return
		}
		if res.Replayed > 0 || res.Dropped > 0 {
			g.logger.Info().
				Int("replayed", res.Replayed).
				Int("dropped", res.Dropped).
				Int("remaining", res.Remaining).
				Msg("offline queue drained")
		}
	}()
}

func (g *Gateway) drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult

	entries, err := g.queue.List(ctx)
	if err != nil {
		return res, err
	}
	res.Remaining = len(entries)

	for _, entry := range entries {
		if ctx.Err() != nil {
			res.Stopped = ctx.Err().Error()
			return res, nil
		}

		if entry.Kind == KindClassify {
			remaining, err := g.queue.Remove(ctx, entry.ID)
			if err != nil {
				return res, err
			}
			res.Dropped++
			res.Remaining = remaining
			continue
		}

		if !g.replayFits() {
			res.Stopped = stoppedReserve
			return res, nil
		}

		req, _ := g.completionRequest(entry.Payload, WithoutContext())
		resp, err := g.execute(ctx, KindComplete, entry.Payload, req, nil, false)
		if err != nil {
			res.Stopped = err.Error()
			return res, nil
		}

		remaining, err := g.queue.Remove(ctx, entry.ID)
		if err != nil {
			return res, err
		}
		res.Replayed++
		res.Remaining = remaining

		e := bus.NewEvent(bus.EventQueueReplayed)
		e.Component = "gateway"
		e.RequestID = entry.ID
		e.Kind = string(KindComplete)
		e.Input = entry.Payload
		e.Content = resp.Content
		e.QueueDepth = remaining
		bus.Emit(g.events, e)
	}
	return res, nil
}

// replayFits reports whether one more replay keeps the reserve free.
func (g *Gateway) replayFits() bool {
	s := g.limiter.Status()
	return s.Used+1 <= s.Limit-g.cfg.DrainReserve
}
