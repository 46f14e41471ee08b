package eratracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/rs/zerolog"

	"github.com/stakebridge/relay-oracle/x/oraclemaster"
	"github.com/stakebridge/relay-oracle/x/relayclient"
)

// ErrSkewFatal marks an unrecoverable era skew: either the local tracker saw
// no era advance within the update delay, or the contract trails the
// expected era by more than the configured wall time. The daemon shuts down
// after a grace period.
var ErrSkewFatal = errors.New("era skew guard triggered")

// RelayChain is the slice of the relay client the tracker needs.
type RelayChain interface {
	ActiveEra(ctx context.Context) (relayclient.ActiveEraInfo, error)
	BlockHash(ctx context.Context, height uint64) (types.Hash, error)
}

// EraEvent describes an observed era advance and its snapshot point.
type EraEvent struct {
	EraID         uint64
	BoundaryBlock uint64
	BoundaryHash  types.Hash
	ObservedAt    time.Time
}

// Tracker observes the relay chain's active era, resolves each new era's
// boundary block hash, and owns the skew guards and the reconnect watchdog.
type Tracker struct {
	cfg   Config
	log   zerolog.Logger
	relay RelayChain

	now      func() time.Time
	schedule Scheduler

	// onWatchdog fires when no era advance was observed within the
	// watchdog period; the app wires it to a relay force-reconnect.
	onWatchdog func()
	watchdog   *Watchdog

	mu          sync.Mutex
	anchor      oraclemaster.Anchor
	hasAnchor   bool
	lastEra     uint64
	seenEra     bool
	lastAdvance time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithScheduler injects the watchdog's deadline scheduler.
func WithScheduler(s Scheduler) Option {
	return func(t *Tracker) { t.schedule = s }
}

// WithWatchdogHook sets the action taken when the watchdog fires.
func WithWatchdogHook(fn func()) Option {
	return func(t *Tracker) { t.onWatchdog = fn }
}

func New(cfg Config, relay RelayChain, log zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:   cfg,
		log:   log.With().Str("component", "era-tracker").Logger(),
		relay: relay,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.watchdog = newWatchdog(cfg.WatchdogPeriod, func() {
		if t.onWatchdog != nil {
			t.onWatchdog()
		}
	}, t.schedule, t.log)
	return t
}

// Watchdog exposes the reconnect watchdog, mainly for introspection.
func (t *Tracker) Watchdog() *Watchdog {
	return t.watchdog
}

// SetAnchor installs the contract's anchor triple. Must be called before the
// first CheckSkew; era arithmetic follows the contract, not local config.
func (t *Tracker) SetAnchor(a oraclemaster.Anchor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.anchor = a
	t.hasAnchor = true
	t.log.Info().
		Uint64("anchor_era", a.EraID).
		Uint64("anchor_timestamp", a.Timestamp).
		Uint64("seconds_per_era", a.SecondsPerEra).
		Msg("era anchor installed")
}

// Start arms the watchdog and establishes the stagnation baseline.
func (t *Tracker) Start() {
	t.mu.Lock()
	t.lastAdvance = t.now()
	t.mu.Unlock()
	t.watchdog.Arm()
}

// Stop disarms the watchdog.
func (t *Tracker) Stop() {
	t.watchdog.Disarm()
}

// ExpectedEra computes the era the anchor arithmetic predicts for the given
// wall time.
func (t *Tracker) ExpectedEra(at time.Time) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expectedEraLocked(at)
}

func (t *Tracker) expectedEraLocked(at time.Time) uint64 {
	if !t.hasAnchor {
		return 0
	}
	ts := uint64(at.Unix())
	if ts <= t.anchor.Timestamp {
		return t.anchor.EraID
	}
	return t.anchor.EraID + (ts-t.anchor.Timestamp)/t.anchor.SecondsPerEra
}

// BoundaryBlock returns the block number at which the era began.
func (t *Tracker) BoundaryBlock(eraID uint64) uint64 {
	return eraID*t.cfg.EraDurationInBlocks + t.cfg.InitialBlockNumber
}

// CheckEra queries the relay chain's active era. When the era advanced (or
// on the first observation) it resolves the boundary block hash — the
// snapshot point for every read of this era — rearms the watchdog, and
// returns the event. Otherwise it returns nil.
func (t *Tracker) CheckEra(ctx context.Context) (*EraEvent, error) {
	era, err := t.relay.ActiveEra(ctx)
	if err != nil {
		return nil, err
	}
	observed := uint64(era.Index)

	t.mu.Lock()
	if t.seenEra && observed <= t.lastEra {
		t.mu.Unlock()
		return nil, nil
	}
	t.mu.Unlock()

	boundary := t.BoundaryBlock(observed)
	hash, err := t.relay.BlockHash(ctx, boundary)
	if err != nil {
		return nil, fmt.Errorf("era %d boundary block %d: %w", observed, boundary, err)
	}

	t.mu.Lock()
	t.lastEra = observed
	t.seenEra = true
	t.lastAdvance = t.now()
	t.mu.Unlock()
	t.watchdog.Arm()

	t.log.Info().
		Uint64("era", observed).
		Uint64("boundary_block", boundary).
		Str("boundary_hash", hash.Hex()).
		Msg("era advance observed")

	return &EraEvent{
		EraID:         observed,
		BoundaryBlock: boundary,
		BoundaryHash:  hash,
		ObservedAt:    t.now(),
	}, nil
}

// LastEra returns the most recently observed era, if any.
func (t *Tracker) LastEra() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastEra, t.seenEra
}

// CheckStagnation applies the local era-update guard alone; used when the
// contract's era counter is unreachable.
func (t *Tracker) CheckStagnation() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkStagnationLocked()
}

func (t *Tracker) checkStagnationLocked() error {
	now := t.now()
	if !t.lastAdvance.IsZero() && now.Sub(t.lastAdvance) > t.cfg.EraUpdateDelay {
		return fmt.Errorf("%w: no era advance for %s (max %s)",
			ErrSkewFatal, now.Sub(t.lastAdvance).Round(time.Second), t.cfg.EraUpdateDelay)
	}
	return nil
}

// CheckSkew applies the two fatal guards against the contract's era counter.
func (t *Tracker) CheckSkew(contractEra uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkStagnationLocked(); err != nil {
		return err
	}

	now := t.now()

	if t.hasAnchor {
		// The era the contract should have reached EraDelayTime ago.
		lagged := t.expectedEraLocked(now.Add(-t.cfg.EraDelayTime))
		if contractEra < lagged {
			return fmt.Errorf("%w: contract era %d trails expected era %d by more than %s",
				ErrSkewFatal, contractEra, lagged, t.cfg.EraDelayTime)
		}
	}

	return nil
}

