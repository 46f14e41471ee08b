package eratracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stakebridge/relay-oracle/x/oraclemaster"
	"github.com/stakebridge/relay-oracle/x/relayclient"
)

type fakeRelay struct {
	mu        sync.Mutex
	era       uint32
	eraErr    error
	hashCalls []uint64
}

func (f *fakeRelay) ActiveEra(context.Context) (relayclient.ActiveEraInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eraErr != nil {
		return relayclient.ActiveEraInfo{}, f.eraErr
	}
	return relayclient.ActiveEraInfo{Index: types.U32(f.era)}, nil
}

func (f *fakeRelay) BlockHash(_ context.Context, height uint64) (types.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashCalls = append(f.hashCalls, height)
	var h types.Hash
	h[0] = byte(height)
	return h, nil
}

func (f *fakeRelay) setEra(era uint32) {
	f.mu.Lock()
	f.era = era
	f.mu.Unlock()
}

// manualScheduler arms deadlines that only fire when the test says so.
type manualScheduler struct {
	mu     sync.Mutex
	fns    []func()
	nArmed int
}

func (s *manualScheduler) schedule(_ time.Duration, fn func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
	s.nArmed++
	return func() bool { return true }
}

func (s *manualScheduler) fireLatest() {
	s.mu.Lock()
	fn := s.fns[len(s.fns)-1]
	s.mu.Unlock()
	fn()
}

func (s *manualScheduler) armedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nArmed
}

func newTestTracker(relay *fakeRelay, now *time.Time) (*Tracker, *manualScheduler) {
	sched := &manualScheduler{}
	cfg := Config{
		EraDurationInBlocks: 30,
		InitialBlockNumber:  1,
		EraUpdateDelay:      360 * time.Second,
		EraDelayTime:        600 * time.Second,
		WatchdogPeriod:      185 * time.Second,
	}
	tr := New(cfg, relay, zerolog.Nop(),
		WithClock(func() time.Time { return *now }),
		WithScheduler(sched.schedule),
	)
	return tr, sched
}

func TestBoundaryBlockArithmetic(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{}
	now := time.Unix(1_600_000_000, 0)
	tr, _ := newTestTracker(relay, &now)

	require.Equal(t, uint64(1), tr.BoundaryBlock(0))
	require.Equal(t, uint64(42*30+1), tr.BoundaryBlock(42))
}

func TestExpectedEraFollowsAnchor(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{}
	now := time.Unix(10_000, 0)
	tr, _ := newTestTracker(relay, &now)

	tr.SetAnchor(oraclemaster.Anchor{EraID: 100, Timestamp: 10_000, SecondsPerEra: 180})

	require.Equal(t, uint64(100), tr.ExpectedEra(time.Unix(10_000, 0)))
	require.Equal(t, uint64(100), tr.ExpectedEra(time.Unix(10_179, 0)))
	require.Equal(t, uint64(101), tr.ExpectedEra(time.Unix(10_180, 0)))
	require.Equal(t, uint64(105), tr.ExpectedEra(time.Unix(10_000+5*180, 0)))
	// Before the anchor the era pins to the anchor era.
	require.Equal(t, uint64(100), tr.ExpectedEra(time.Unix(9_000, 0)))
}

func TestCheckEraEmitsOnAdvanceOnly(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{era: 42}
	now := time.Unix(10_000, 0)
	tr, _ := newTestTracker(relay, &now)
	tr.Start()
	defer tr.Stop()

	ctx := context.Background()

	// First observation emits with the boundary snapshot.
	event, err := tr.CheckEra(ctx)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, uint64(42), event.EraID)
	require.Equal(t, uint64(42*30+1), event.BoundaryBlock)
	require.Equal(t, []uint64{42*30 + 1}, relay.hashCalls)

	// Same era: no event, no extra block hash read.
	event, err = tr.CheckEra(ctx)
	require.NoError(t, err)
	require.Nil(t, event)
	require.Len(t, relay.hashCalls, 1)

	// Advance: new event.
	relay.setEra(43)
	event, err = tr.CheckEra(ctx)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, uint64(43), event.EraID)
}

func TestWatchdogRearmsOnEraAdvance(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{era: 7}
	now := time.Unix(10_000, 0)
	tr, sched := newTestTracker(relay, &now)

	tr.Start()
	defer tr.Stop()
	require.Equal(t, 1, sched.armedCount())

	_, err := tr.CheckEra(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sched.armedCount())
}

func TestWatchdogFiresReconnectAndRearms(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{era: 7}
	now := time.Unix(10_000, 0)

	var reconnects int
	sched := &manualScheduler{}
	tr := New(Config{
		EraDurationInBlocks: 30,
		InitialBlockNumber:  1,
		EraUpdateDelay:      360 * time.Second,
		EraDelayTime:        600 * time.Second,
		WatchdogPeriod:      185 * time.Second,
	}, relay, zerolog.Nop(),
		WithClock(func() time.Time { return now }),
		WithScheduler(sched.schedule),
		WithWatchdogHook(func() { reconnects++ }),
	)

	tr.Start()
	defer tr.Stop()

	sched.fireLatest()
	require.Equal(t, 1, reconnects)
	require.Equal(t, uint64(1), tr.Watchdog().Fires())
	// Fired watchdog rearms itself.
	require.Equal(t, 2, sched.armedCount())
}

func TestStagnationGuard(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{era: 7}
	now := time.Unix(10_000, 0)
	tr, _ := newTestTracker(relay, &now)
	tr.SetAnchor(oraclemaster.Anchor{EraID: 7, Timestamp: 10_000, SecondsPerEra: 180})
	tr.Start()
	defer tr.Stop()

	require.NoError(t, tr.CheckStagnation())

	now = now.Add(361 * time.Second)
	err := tr.CheckStagnation()
	require.ErrorIs(t, err, ErrSkewFatal)
}

func TestContractSkewGuard(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{era: 7}
	now := time.Unix(100_000, 0)
	// Generous update delay so only the contract guard is in play here.
	tr := New(Config{
		EraDurationInBlocks: 30,
		InitialBlockNumber:  1,
		EraUpdateDelay:      24 * time.Hour,
		EraDelayTime:        600 * time.Second,
		WatchdogPeriod:      185 * time.Second,
	}, relay, zerolog.Nop(),
		WithClock(func() time.Time { return now }),
		WithScheduler((&manualScheduler{}).schedule),
	)
	tr.Start()
	defer tr.Stop()

	// Era 10 began at t=100000, 180s per era. The guard compares the
	// contract era against the era expected EraDelayTime ago.
	tr.SetAnchor(oraclemaster.Anchor{EraID: 10, Timestamp: 100_000, SecondsPerEra: 180})

	now = time.Unix(100_000+700, 0)
	require.NoError(t, tr.CheckSkew(10))

	// Push wall time far enough that the era expected 600s ago moved on.
	now = time.Unix(100_000+180*4+601, 0)
	require.NoError(t, tr.CheckSkew(14))
	err := tr.CheckSkew(10)
	require.ErrorIs(t, err, ErrSkewFatal)
}
