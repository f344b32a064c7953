package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/goforbroke1006/stagechain"
	"github.com/goforbroke1006/stagechain/internal/config"
	gates "github.com/goforbroke1006/stagechain/internal/gate"
	"github.com/goforbroke1006/stagechain/internal/logging"
	"github.com/goforbroke1006/stagechain/internal/metrics"
	"github.com/goforbroke1006/stagechain/internal/notify"
	"github.com/goforbroke1006/stagechain/internal/orchestrator"
	"github.com/goforbroke1006/stagechain/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the chain and its countdowns until the last one completes",
	RunE:  runPipeline,
}

func init() {
	runCmd.Flags().String("input-id", "", "token passed to every stage (overrides pipeline.input_id)")
	runCmd.Flags().String("gate", "", "gate kind: always, tcp or redis (overrides gate.kind)")
	runCmd.Flags().String("metrics-addr", "", "serve /metrics and /healthz on this address")
	bindRunFlags()
}

// bindRunFlags lets run flags override their config keys. viper.Reset drops the bindings.
func bindRunFlags() {
	_ = viper.BindPFlag("pipeline.input_id", runCmd.Flags().Lookup("input-id"))
	_ = viper.BindPFlag("gate.kind", runCmd.Flags().Lookup("gate"))
	_ = viper.BindPFlag("metrics.addr", runCmd.Flags().Lookup("metrics-addr"))
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("metrics-addr") {
		viper.Set("metrics.enabled", true)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *backend.Client
	if cfg.Redis.Enabled || cfg.Gate.Kind == config.GateRedis {
		rdb = backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
	}

	console := notify.NewConsole(cmd.OutOrStdout())
	var notifier stagechain.Notifier = console
	if cfg.Redis.Enabled {
		notifier = notify.Multi{console, notify.NewRedis(rdb,
			notify.WithPrefix(cfg.Redis.Prefix),
			notify.WithTimeout(cfg.Gate.Timeout()),
			notify.WithLogger(logger),
		)}
	}

	gate, err := buildGate(cfg, rdb)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	registry := stagechain.NewRegistry[string](logger)
	defer registry.Close()

	chain := stagechain.New(
		stagechain.WithLogger(logger),
		stagechain.WithPollInterval(cfg.Pipeline.PollInterval()),
		stagechain.WithWork(orchestrator.SimulatedWork(cfg.Pipeline.StageDuration(), logger)),
		stagechain.WithOnChanges(collector.ObserveTransition),
	)

	after := []struct {
		kind  stagechain.StageKind
		run   config.CountdownRunConfig
		label string
	}{
		{stagechain.Second, cfg.Countdown.AfterSecond, ""},
		{stagechain.Third, cfg.Countdown.AfterThird, "Second"},
	}

	countdownOpts := []stagechain.Option{
		stagechain.WithLogger(logger),
		stagechain.WithTickInterval(cfg.Countdown.Interval()),
		stagechain.WithOnTick(collector.ObserveTick),
		stagechain.WithOnPublish(collector.ObservePublish),
		stagechain.WithOnChanges(collector.ObserveTransition),
	}
	var triggers []orchestrator.Trigger
	for _, a := range after {
		if !a.run.Enabled {
			continue
		}
		countdownOpts = append(countdownOpts, stagechain.WithNoticeFor(a.run.TerminalID, a.run.Title, a.run.Text))
		triggers = append(triggers, orchestrator.Trigger{
			After:      a.kind,
			TerminalID: a.run.TerminalID,
			Ticks:      a.run.Ticks,
			Label:      a.label,
		})
	}
	countdown := stagechain.NewCountdown(registry, notifier, countdownOpts...)

	pipeline := stagechain.NewPipeline(chain, countdown, registry, gate)
	orch, err := orchestrator.New(pipeline, console, logger, triggers...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		srv := server.New(cfg.Metrics.Addr, collector.Handler(), gate, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		// Ends the metrics server once the orchestrator is done.
		defer stop()
		return orch.Run(gctx, cfg.Pipeline.InputID)
	})

	if err := g.Wait(); err != nil {
		logger.Error("pipeline run failed", "error", err.Error())
		return err
	}
	return nil
}

func buildGate(cfg *config.Config, rdb *backend.Client) (stagechain.Gate, error) {
	switch cfg.Gate.Kind {
	case config.GateAlways:
		return stagechain.Always, nil
	case config.GateTCP:
		return stagechain.ConnectivityGate{Source: gates.NewTCPDial(cfg.Gate.Address, cfg.Gate.Timeout())}, nil
	case config.GateRedis:
		return stagechain.ConnectivityGate{Source: gates.NewRedisPing(rdb, cfg.Gate.Timeout())}, nil
	default:
		return nil, fmt.Errorf("unknown gate kind %q", cfg.Gate.Kind)
	}
}
