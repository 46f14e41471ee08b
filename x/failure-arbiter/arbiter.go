package arbiter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrBlacklisted is returned for calls against an endpoint whose cooldown has
// not expired yet.
var ErrBlacklisted = errors.New("endpoint is blacklisted")

// Config holds the failure policy shared by all endpoints.
type Config struct {
	// MaxFailures is the number of consecutive failures an endpoint may
	// accumulate; one more blacklists it.
	MaxFailures uint32 `mapstructure:"max_failures" yaml:"max_failures"`

	// Cooldown is how long a blacklisted endpoint stays suppressed.
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

func DefaultConfig() Config {
	return Config{
		MaxFailures: 10,
		Cooldown:    60 * time.Second,
	}
}

// EndpointState is a read-only snapshot of one endpoint's failure accounting.
type EndpointState struct {
	Name                string
	URL                 string
	ConsecutiveFailures uint32
	BlacklistedUntil    time.Time
}

type endpointState struct {
	url              string
	failures         uint32
	blacklistedUntil time.Time
}

// Arbiter tracks per-endpoint consecutive failures and flips the daemon into
// recovery mode when any endpoint crosses the blacklist threshold. Recovery
// ends only when no endpoint remains blacklisted and at least one call has
// succeeded since recovery was entered.
type Arbiter struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time

	mu             sync.Mutex
	endpoints      map[string]*endpointState
	recoveryActive bool
	probeSucceeded bool

	// onRecoveryChange fires on transitions into and out of recovery;
	// it drives the status flag and the recovery gauge. Must not call
	// back into the Arbiter.
	onRecoveryChange func(active bool)
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) { a.now = now }
}

// WithRecoveryHook registers a callback invoked on every transition into or
// out of recovery mode.
func WithRecoveryHook(fn func(active bool)) Option {
	return func(a *Arbiter) { a.onRecoveryChange = fn }
}

func New(cfg Config, log zerolog.Logger, opts ...Option) *Arbiter {
	a := &Arbiter{
		cfg:       cfg,
		log:       log.With().Str("component", "failure-arbiter").Logger(),
		now:       time.Now,
		endpoints: make(map[string]*endpointState),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds an endpoint under the given name. Registering an existing
// name updates its URL and resets its accounting.
func (a *Arbiter) Register(name, url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.endpoints[name] = &endpointState{url: url}
}

// SetURL records an endpoint rotation without touching failure accounting.
func (a *Arbiter) SetURL(name, url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ep, ok := a.endpoints[name]; ok {
		ep.url = url
	}
}

// Allowed reports whether calls against the endpoint may proceed.
func (a *Arbiter) Allowed(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ep, ok := a.endpoints[name]
	if !ok {
		return fmt.Errorf("unknown endpoint %q", name)
	}
	if !ep.blacklistedUntil.IsZero() && a.now().Before(ep.blacklistedUntil) {
		return fmt.Errorf("%w: %s until %s", ErrBlacklisted, name, ep.blacklistedUntil.Format(time.RFC3339))
	}
	return nil
}

// Success resets the endpoint's failure count. During recovery it counts as
// the probe required before recovery may end.
func (a *Arbiter) Success(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ep, ok := a.endpoints[name]
	if !ok {
		return
	}
	ep.failures = 0
	if a.recoveryActive {
		a.probeSucceeded = true
		a.maybeExitRecoveryLocked()
	}
}

// Failure increments the endpoint's consecutive failure count and blacklists
// it once the count exceeds the configured maximum.
func (a *Arbiter) Failure(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ep, ok := a.endpoints[name]
	if !ok {
		return
	}
	ep.failures++
	if ep.failures <= a.cfg.MaxFailures {
		return
	}
	if !ep.blacklistedUntil.IsZero() && a.now().Before(ep.blacklistedUntil) {
		return
	}

	ep.blacklistedUntil = a.now().Add(a.cfg.Cooldown)
	a.log.Warn().
		Str("endpoint", name).
		Str("url", ep.url).
		Uint32("consecutive_failures", ep.failures).
		Time("blacklisted_until", ep.blacklistedUntil).
		Msg("endpoint blacklisted")
	a.enterRecoveryLocked()
}

// Tick expires blacklists whose deadline has passed. It is called on every
// monitoring tick; cooldowns use the injected monotonic-friendly clock.
func (a *Arbiter) Tick() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for name, ep := range a.endpoints {
		if !ep.blacklistedUntil.IsZero() && !now.Before(ep.blacklistedUntil) {
			ep.blacklistedUntil = time.Time{}
			ep.failures = 0
			a.log.Info().Str("endpoint", name).Msg("blacklist cooldown expired")
		}
	}
	a.maybeExitRecoveryLocked()
}

// InRecovery reports whether the daemon is in recovery mode.
func (a *Arbiter) InRecovery() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recoveryActive
}

// Snapshot returns the current state of every endpoint.
func (a *Arbiter) Snapshot() []EndpointState {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]EndpointState, 0, len(a.endpoints))
	for name, ep := range a.endpoints {
		out = append(out, EndpointState{
			Name:                name,
			URL:                 ep.url,
			ConsecutiveFailures: ep.failures,
			BlacklistedUntil:    ep.blacklistedUntil,
		})
	}
	return out
}

func (a *Arbiter) enterRecoveryLocked() {
	if a.recoveryActive {
		return
	}
	a.recoveryActive = true
	a.probeSucceeded = false
	a.log.Warn().Msg("entering recovery mode")
	if a.onRecoveryChange != nil {
		a.onRecoveryChange(true)
	}
}

func (a *Arbiter) maybeExitRecoveryLocked() {
	if !a.recoveryActive || !a.probeSucceeded {
		return
	}
	now := a.now()
	for _, ep := range a.endpoints {
		if !ep.blacklistedUntil.IsZero() && now.Before(ep.blacklistedUntil) {
			return
		}
	}
	a.recoveryActive = false
	a.probeSucceeded = false
	a.log.Info().Msg("recovery mode completed")
	if a.onRecoveryChange != nil {
		a.onRecoveryChange(false)
	}
}
