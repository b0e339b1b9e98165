// Package poller drives the periodic configuration fetch.
//
// Each tick is cheap: a rate gate decides whether a poll is due, and only
// then is the link checked and the fetch made. The gate is consumed before the
// link check, so a cycle skipped for a down link still waits a full interval.
// The first tick after construction always polls.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aurora-dispenser/aurora-sync/internal/logging"
	"github.com/aurora-dispenser/aurora-sync/internal/schedule"
)

const (
	// DefaultInterval is the time between polls.
	DefaultInterval = 30 * time.Second
	// DefaultTick is how often Run checks whether a poll is due.
	DefaultTick = 50 * time.Millisecond
)

// Outcome classifies one tick.
type Outcome string

const (
	OutcomeNotDue   Outcome = "not_due"
	OutcomeLinkDown Outcome = "link_down"
	OutcomeApplied  Outcome = "applied"
	OutcomeFailed   Outcome = "failed"
)

// Result describes one tick. CycleID is empty for OutcomeNotDue.
type Result struct {
	CycleID string
	Outcome Outcome
	At      time.Time
	Version int64
	Err     error
}

// Stats accumulates poll results since start.
type Stats struct {
	Cycles      int
	Applied     int
	Failed      int
	LinkDown    int
	Last        Result
	LastSuccess time.Time
}

// Fetcher performs one configuration fetch into the model.
type Fetcher interface {
	FetchConfig(ctx context.Context, model *schedule.Model) error
}

// Link reports whether the network link is usable.
type Link interface {
	Connected() bool
}

// Options configures a Poller. Zero values take the defaults.
type Options struct {
	Interval time.Duration
	Tick     time.Duration
}

// Poller runs fetch cycles no more often than once per interval.
type Poller struct {
	fetcher  Fetcher
	model    *schedule.Model
	link     Link
	interval time.Duration
	tick     time.Duration
	gate     *rate.Limiter

	mu        sync.Mutex
	stats     Stats
	observers []func(Result)
}

// New creates a poller. A nil link is treated as always connected.
func New(fetcher Fetcher, model *schedule.Model, link Link, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	return &Poller{
		fetcher:  fetcher,
		model:    model,
		link:     link,
		interval: opts.Interval,
		tick:     opts.Tick,
		// Burst 1 starts full, so the first tick polls immediately.
		gate: rate.NewLimiter(rate.Every(opts.Interval), 1),
	}
}

// Interval returns the configured poll interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// OnResult registers fn to receive every attempted cycle (not OutcomeNotDue).
// fn runs on the polling goroutine and must not block.
func (p *Poller) OnResult(fn func(Result)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// Stats returns a copy of the accumulated results.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Tick runs one cycle if a poll is due at now.
func (p *Poller) Tick(ctx context.Context, now time.Time) Result {
	if !p.gate.AllowN(now, 1) {
		return Result{Outcome: OutcomeNotDue, At: now}
	}

	res := Result{CycleID: uuid.NewString(), At: now}

	switch {
	case p.link != nil && !p.link.Connected():
		res.Outcome = OutcomeLinkDown
		logging.Debug("Link down; skipping poll", zap.String("cycle_id", res.CycleID))
	default:
		if err := p.fetcher.FetchConfig(ctx, p.model); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
		} else {
			res.Outcome = OutcomeApplied
		}
	}
	res.Version = p.model.Version()

	logging.LogCycle(res.CycleID, string(res.Outcome), res.Err)
	p.record(res)
	return res
}

// Run ticks until ctx is cancelled. The first tick happens immediately.
func (p *Poller) Run(ctx context.Context) error {
	logging.Info("Poller started",
		zap.Duration("interval", p.interval),
		zap.Duration("tick", p.tick),
	)

	p.Tick(ctx, time.Now())

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("Poller stopped")
			return nil
		case now := <-ticker.C:
			p.Tick(ctx, now)
		}
	}
}

func (p *Poller) record(res Result) {
	p.mu.Lock()
	p.stats.Cycles++
	switch res.Outcome {
	case OutcomeApplied:
		p.stats.Applied++
		p.stats.LastSuccess = res.At
	case OutcomeFailed:
		p.stats.Failed++
	case OutcomeLinkDown:
		p.stats.LinkDown++
	}
	p.stats.Last = res
	observers := make([]func(Result), len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	for _, fn := range observers {
		fn(res)
	}
}
