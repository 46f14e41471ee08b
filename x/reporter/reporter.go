package reporter

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	eratracker "github.com/stakebridge/relay-oracle/x/era-tracker"
	arbiter "github.com/stakebridge/relay-oracle/x/failure-arbiter"
	"github.com/stakebridge/relay-oracle/x/journal"
	"github.com/stakebridge/relay-oracle/x/oraclemaster"
	"github.com/stakebridge/relay-oracle/x/relayclient"
	"github.com/stakebridge/relay-oracle/x/report"
	"github.com/stakebridge/relay-oracle/x/submitter"
)

// ContractReader is the slice of the OracleMaster caller the reporter needs.
type ContractReader interface {
	CurrentEraID(ctx context.Context) (uint64, error)
	EraID(ctx context.Context) (uint64, error)
	StashAccounts(ctx context.Context) ([][32]byte, error)
	FetchAnchor(ctx context.Context) (oraclemaster.Anchor, error)
}

// EraSource is the era tracker surface consumed by the loop.
type EraSource interface {
	SetAnchor(oraclemaster.Anchor)
	Start()
	Stop()
	CheckEra(ctx context.Context) (*eratracker.EraEvent, error)
	CheckSkew(contractEra uint64) error
	CheckStagnation() error
}

// TupleBuilder assembles one report tuple per stash at a snapshot block.
type TupleBuilder interface {
	Build(ctx context.Context, eraID uint64, stash relayclient.AccountID, at types.Hash) (*report.Tuple, error)
}

// ReportSubmitter pushes one tuple to the parachain.
type ReportSubmitter interface {
	Submit(ctx context.Context, eraID uint64, t *report.Tuple) (submitter.Result, error)
	OracleBalance(ctx context.Context) (*big.Int, error)
}

// RecoveryState is the failure arbiter surface consumed by the loop.
type RecoveryState interface {
	Tick()
	InRecovery() bool
}

// Connector brings a chain session up during the starting state.
type Connector interface {
	Connect(ctx context.Context) error
	URL() string
}

// RelayBalances samples the parachain sovereign account on the relay chain.
type RelayBalances interface {
	ParachainBalance(ctx context.Context, paraID uint32, at types.Hash) (*big.Int, error)
}

// Deps are the collaborators the reporter sequences.
type Deps struct {
	RelayConn     Connector
	ParaConn      Connector
	RelayBalances RelayBalances
	Contract      ContractReader
	Tracker       EraSource
	Builder       TupleBuilder
	Submitter     ReportSubmitter
	Recovery      RecoveryState
	Journal       journal.Manager
	Status        *StatusHolder
	Metrics       *Metrics
}

// Reporter owns the daemon's state machine: it sequences era tracking, stash
// discovery, report building and submission, one era at a time.
type Reporter struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	instanceID string

	lastReported uint64
	hasReported  bool
	knownStashes map[[32]byte]struct{}
	pending      *eratracker.EraEvent
}

func New(cfg Config, deps Deps, log zerolog.Logger) *Reporter {
	return &Reporter{
		cfg:          cfg,
		deps:         deps,
		log:          log.With().Str("component", "reporter").Logger(),
		instanceID:   uuid.NewString(),
		knownStashes: make(map[[32]byte]struct{}),
	}
}

// Run drives the FSM until the context is canceled or a fatal skew fires.
// On a fatal skew it waits out the configured grace and returns the error;
// the process exits non-zero.
func (r *Reporter) Run(ctx context.Context) error {
	r.deps.Status.Set(StatusStarting)
	r.log.Info().Str("instance_id", r.instanceID).Msg("oracle starting")

	if err := r.deps.RelayConn.Connect(ctx); err != nil {
		return err
	}
	if err := r.deps.ParaConn.Connect(ctx); err != nil {
		return err
	}

	anchor, err := r.deps.Contract.FetchAnchor(ctx)
	if err != nil {
		return err
	}
	r.deps.Tracker.SetAnchor(anchor)

	r.publishAgentInfo()

	r.deps.Tracker.Start()
	defer r.deps.Tracker.Stop()

	r.deps.Status.Set(StatusMonitoring)
	r.log.Info().Dur("frequency", r.cfg.Frequency).Bool("debug_mode", r.cfg.DebugMode).Msg("monitoring started")

	ticker := time.NewTicker(r.cfg.Frequency)
	defer ticker.Stop()

	for {
		if err := r.tick(ctx); err != nil {
			if errors.Is(err, eratracker.ErrSkewFatal) {
				r.log.Error().Err(err).
					Dur("grace", r.cfg.WaitBeforeShutdown).
					Msg("fatal era skew, shutting down after grace")
				select {
				case <-ctx.Done():
				case <-time.After(r.cfg.WaitBeforeShutdown):
				}
				r.deps.Status.Set(StatusNotWorking)
				return err
			}
			r.log.Warn().Err(err).Msg("tick failed")
		}

		select {
		case <-ctx.Done():
			r.log.Info().Msg("shutdown requested")
			r.deps.Status.Set(StatusNotWorking)
			return nil
		case <-ticker.C:
		}
	}
}

// tick is one pass of the monitoring loop.
func (r *Reporter) tick(ctx context.Context) error {
	r.deps.Recovery.Tick()

	event, err := r.deps.Tracker.CheckEra(ctx)
	if err != nil {
		r.noteRelayError(err)
	} else if event != nil {
		r.pending = event
		r.deps.Metrics.ActiveEraID.Set(float64(event.EraID))
		r.deps.Metrics.PreviousEraChangeBlockNumber.Set(float64(event.BoundaryBlock))
		r.publishAgentInfo()
	}

	contractEra, err := r.deps.Contract.EraID(ctx)
	if err != nil {
		r.noteParaError(err)
		return r.deps.Tracker.CheckStagnation()
	}
	if err := r.deps.Tracker.CheckSkew(contractEra); err != nil {
		return err
	}

	if r.deps.Recovery.InRecovery() {
		return nil
	}
	if r.pending == nil {
		return nil
	}
	if r.hasReported && r.pending.EraID <= r.lastReported {
		r.pending = nil
		return nil
	}

	reportable, err := r.deps.Contract.CurrentEraID(ctx)
	if err != nil {
		r.noteParaError(err)
		return nil
	}
	if reportable != r.pending.EraID {
		r.log.Info().
			Uint64("observed_era", r.pending.EraID).
			Uint64("reportable_era", reportable).
			Msg("contract not accepting the observed era")
		if reportable > r.pending.EraID {
			// Passed eras are never reconciled.
			r.pending = nil
		}
		return nil
	}

	return r.processEra(ctx, r.pending)
}

// processEra handles every stash of one era sequentially, in contract order.
func (r *Reporter) processEra(ctx context.Context, event *eratracker.EraEvent) error {
	stashes, err := r.deps.Contract.StashAccounts(ctx)
	if err != nil {
		r.noteParaError(err)
		return nil
	}
	r.logStashDiff(stashes)

	if len(stashes) == 0 {
		r.log.Info().Uint64("era", event.EraID).Msg("stash set is empty, skipping era")
		r.pending = nil
		return nil
	}

	r.deps.Status.Set(StatusProcessing)
	defer r.deps.Status.Set(StatusMonitoring)

	started := time.Now()
	r.log.Info().
		Uint64("era", event.EraID).
		Int("stashes", len(stashes)).
		Str("snapshot", event.BoundaryHash.Hex()).
		Msg("processing era")

	if err := r.deps.Journal.Begin(journal.Record{
		Era:       event.EraID,
		BlockHash: event.BoundaryHash.Hex(),
	}); err != nil {
		r.log.Warn().Err(err).Msg("journal write failed")
	}

	totalFree := new(big.Int)
	allHandled := true

	for _, stash := range stashes {
		if ctx.Err() != nil {
			return nil
		}

		tuple, err := r.deps.Builder.Build(ctx, event.EraID, relayclient.AccountID(stash), event.BoundaryHash)
		if err != nil {
			r.noteRelayError(err)
			r.log.Warn().Err(err).
				Uint64("era", event.EraID).
				Hex("stash", stash[:]).
				Msg("skipping stash for this era")
			allHandled = false
			continue
		}
		totalFree.Add(totalFree, tuple.StashBalance)

		res, err := r.deps.Submitter.Submit(ctx, event.EraID, tuple)
		switch {
		case err == nil:
			if res.Outcome == submitter.OutcomeSuccess {
				r.deps.Metrics.TxSuccess.Observe(1)
			}
		case errors.Is(err, submitter.ErrReverted):
			r.deps.Metrics.TxRevert.Observe(1)
			r.deps.Metrics.LastFailedEra.Set(float64(event.EraID))
			r.log.Error().Err(err).
				Uint64("era", event.EraID).
				Hex("stash", stash[:]).
				Msg("report reverted, not retrying this era")
			allHandled = false
		default:
			r.noteParaError(err)
			r.log.Warn().Err(err).
				Uint64("era", event.EraID).
				Hex("stash", stash[:]).
				Msg("report submission failed")
			allHandled = false
		}
	}

	freeFloat, _ := new(big.Float).SetInt(totalFree).Float64()
	r.deps.Metrics.TotalStashesFreeBalance.Set(freeFloat)

	r.sampleBalances(ctx, event)

	switch {
	case allHandled && r.cfg.DebugMode:
		r.log.Info().Uint64("era", event.EraID).Msg("debug mode: era built, nothing submitted")
	case allHandled:
		r.lastReported = event.EraID
		r.hasReported = true
		r.deps.Metrics.LastEraReported.Set(float64(event.EraID))
		r.deps.Metrics.TimeElapsedUntilLastEraReport.Set(float64(time.Now().Unix()))
		if err := r.deps.Journal.Approve(); err != nil {
			r.log.Warn().Err(err).Msg("journal approve failed")
		}
		r.log.Info().
			Uint64("era", event.EraID).
			Dur("elapsed", time.Since(started)).
			Msg("era fully reported")
	default:
		r.log.Warn().Uint64("era", event.EraID).Msg("era finished with failures, waiting for the next era")
	}

	r.pending = nil
	return nil
}

// logStashDiff logs membership changes against the last observed stash set.
func (r *Reporter) logStashDiff(stashes [][32]byte) {
	current := make(map[[32]byte]struct{}, len(stashes))
	for _, s := range stashes {
		current[s] = struct{}{}
		if _, ok := r.knownStashes[s]; !ok {
			r.log.Info().Hex("stash", s[:]).Msg("stash added to the oracle set")
		}
	}
	for s := range r.knownStashes {
		if _, ok := current[s]; !ok {
			r.log.Info().Hex("stash", s[:]).Msg("stash removed from the oracle set")
		}
	}
	r.knownStashes = current
}

// sampleBalances refreshes the balance gauges once per processed era.
func (r *Reporter) sampleBalances(ctx context.Context, event *eratracker.EraEvent) {
	if bal, err := r.deps.RelayBalances.ParachainBalance(ctx, r.cfg.ParaID, event.BoundaryHash); err == nil {
		f, _ := new(big.Float).SetInt(bal).Float64()
		r.deps.Metrics.ParachainBalance.Set(f)
	} else {
		r.noteRelayError(err)
	}

	if bal, err := r.deps.Submitter.OracleBalance(ctx); err == nil {
		f, _ := new(big.Float).SetInt(bal).Float64()
		r.deps.Metrics.OracleBalance.Set(f)
	} else {
		r.noteParaError(err)
	}
}

func (r *Reporter) publishAgentInfo() {
	r.deps.Metrics.Agent.Reset()
	r.deps.Metrics.Agent.WithLabelValues(r.deps.RelayConn.URL(), r.instanceID).Set(1)
}

// noteRelayError feeds relay-side failures into the exception counter.
// Blacklist rejections are expected while a cooldown runs and only logged.
func (r *Reporter) noteRelayError(err error) {
	if errors.Is(err, arbiter.ErrBlacklisted) {
		r.log.Debug().Err(err).Msg("relay endpoint suppressed")
		return
	}
	r.deps.Metrics.RelayExceptionsCount.Inc()
	r.log.Warn().Err(err).Msg("relay chain error")
}

func (r *Reporter) noteParaError(err error) {
	if errors.Is(err, arbiter.ErrBlacklisted) {
		r.log.Debug().Err(err).Msg("parachain endpoint suppressed")
		return
	}
	r.deps.Metrics.ParaExceptionsCount.Inc()
	r.log.Warn().Err(err).Msg("parachain error")
}
