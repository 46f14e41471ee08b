package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/stakebridge/relay-oracle/metrics"
	"github.com/stakebridge/relay-oracle/oracle-app/config"
	apisrv "github.com/stakebridge/relay-oracle/server/api"
	eratracker "github.com/stakebridge/relay-oracle/x/era-tracker"
	arbiter "github.com/stakebridge/relay-oracle/x/failure-arbiter"
	"github.com/stakebridge/relay-oracle/x/journal"
	"github.com/stakebridge/relay-oracle/x/oraclemaster"
	"github.com/stakebridge/relay-oracle/x/parachain"
	"github.com/stakebridge/relay-oracle/x/relayclient"
	"github.com/stakebridge/relay-oracle/x/report"
	"github.com/stakebridge/relay-oracle/x/reporter"
	"github.com/stakebridge/relay-oracle/x/submitter"
)

// App wires the oracle daemon together: two chain clients, the failure
// arbiter, the era tracker, the reporter FSM and the HTTP surface.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	status *reporter.StatusHolder
	rep    *reporter.Reporter

	relay *relayclient.Client
	para  *parachain.Client

	apiServer *apisrv.Server
	journal   journal.Manager

	cancel context.CancelFunc
}

// NewApp builds the daemon from validated configuration.
func NewApp(cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		log:    log.With().Str("component", "app").Logger(),
		status: reporter.NewStatusHolder(),
	}

	m := reporter.NewMetrics()

	arb := arbiter.New(cfg.ArbiterConfig(), log,
		arbiter.WithRecoveryHook(func(active bool) {
			a.status.SetRecovering(active)
			if active {
				m.IsRecoveryModeActive.Set(1)
			} else {
				m.IsRecoveryModeActive.Set(0)
			}
		}),
	)
	arb.Register(relayclient.EndpointName, "")
	arb.Register(parachain.EndpointName, "")

	a.relay = relayclient.New(cfg.RelayConfig(), arb, log)
	a.para = parachain.New(cfg.ParaConfig(), arb, log)

	binding, err := oraclemaster.NewBinding(cfg.ContractAddress, cfg.ABIPath)
	if err != nil {
		return nil, err
	}
	caller := oraclemaster.NewCaller(binding, a.para, log)

	key, err := cfg.PrivateKey()
	if err != nil {
		return nil, err
	}
	sub := submitter.New(cfg.SubmitterConfig(), a.para, caller, key, log)
	a.log.Info().Str("oracle_address", sub.From().Hex()).Msg("oracle member address derived")

	builder := report.NewBuilder(a.relay, log)

	tracker := eratracker.New(cfg.TrackerConfig(), a.relay, log,
		eratracker.WithWatchdogHook(func() {
			reconnectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.relay.Reconnect(reconnectCtx); err != nil {
				a.log.Error().Err(err).Msg("watchdog relay reconnect failed")
			}
		}),
	)

	if cfg.JournalPath != "" {
		a.journal = journal.NewFileManager(cfg.JournalPath)
	} else {
		a.journal = journal.NewMemoryManager()
	}

	a.rep = reporter.New(cfg.ReporterConfig(), reporter.Deps{
		RelayConn:     a.relay,
		ParaConn:      a.para,
		RelayBalances: a.relay,
		Contract:      caller,
		Tracker:       tracker,
		Builder:       builder,
		Submitter:     sub,
		Recovery:      arb,
		Journal:       a.journal,
		Status:        a.status,
		Metrics:       m,
	}, log)

	a.initAPIServer(log)
	return a, nil
}

func (a *App) initAPIServer(log zerolog.Logger) {
	s := apisrv.NewServer(a.cfg.APIConfig(), log)
	s.HandleFunc("/healthcheck", a.handleHealthcheck)
	s.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	a.apiServer = s
}

func (a *App) handleHealthcheck(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]string{
		"status": string(a.status.Get()),
	})
}

// Run starts the HTTP surface and the reporter, then blocks until a shutdown
// signal arrives or the reporter fails fatally.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer cancel()

	go func() {
		if err := a.apiServer.Start(runCtx); err != nil {
			a.log.Error().Err(err).Msg("HTTP surface error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			a.log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
		case <-runCtx.Done():
		}
	}()

	err := a.rep.Run(runCtx)

	a.shutdown()
	if err != nil {
		return fmt.Errorf("reporter terminated: %w", err)
	}
	return nil
}

// shutdown closes the chain sessions with a bounded drain.
func (a *App) shutdown() {
	a.log.Info().Msg("initiating graceful shutdown")

	if a.cancel != nil {
		a.cancel()
	}
	a.relay.Close()
	a.para.Close()
	if err := a.journal.Close(); err != nil {
		a.log.Warn().Err(err).Msg("journal close error")
	}

	a.log.Info().Msg("graceful shutdown complete")
}
