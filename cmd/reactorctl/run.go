package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reactorcore/engine/internal/diagnostics"
	"github.com/reactorcore/engine/internal/engine"
	"github.com/reactorcore/engine/internal/graph"
	"github.com/reactorcore/engine/internal/obslog"
	"github.com/reactorcore/engine/internal/physical"
	"github.com/reactorcore/engine/internal/scenarios"
	"github.com/reactorcore/engine/internal/sched"
	"github.com/reactorcore/engine/internal/telemetry"
)

func runCommand() *cobra.Command {
	var (
		scenario     string
		workers      int
		schedulerKin string
		stopAfter    time.Duration
		cronExpr     string
		diagPath     string
		natsURL      string
		natsSubject  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a built-in scenario to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			log := obslog.Init("reactorctl")
			shutdownTrace := telemetry.InitTracer(ctx, "reactorctl")
			shutdownMetrics, instr := telemetry.InitMetrics(ctx, "reactorctl")
			defer telemetry.Flush(context.Background(), shutdownTrace)
			defer telemetry.Flush(context.Background(), shutdownMetrics)

			var diag *diagnostics.Store
			if diagPath != "" {
				var err error
				diag, err = diagnostics.Open(diagPath)
				if err != nil {
					return fmt.Errorf("open diagnostics store: %w", err)
				}
				defer diag.Close()
			}

			if natsURL != "" && scenario != "deadline-miss" {
				return fmt.Errorf("reactorctl: --physical-nats only feeds the deadline-miss scenario's physical_in trigger")
			}

			run := func(ctx context.Context) error {
				return runOnce(ctx, runConfig{
					scenario:    scenario,
					workers:     workers,
					scheduler:   schedulerKin,
					stopAfter:   stopAfter,
					log:         log,
					instr:       instr,
					diag:        diag,
					natsURL:     natsURL,
					natsSubject: natsSubject,
				})
			}

			if cronExpr == "" {
				return run(ctx)
			}

			c := cron.New()
			if _, err := c.AddFunc(cronExpr, func() {
				if err := run(ctx); err != nil {
					log.Error("scheduled run failed", "error", err)
				}
			}); err != nil {
				return fmt.Errorf("invalid cron expression: %w", err)
			}
			c.Start()
			defer c.Stop()
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&scenario, "scenario", "action-delay", "scenario to run: action-delay|microstep|timer|deadline-miss|parallel-chains|precedence")
	cmd.Flags().IntVar(&workers, "workers", 4, "worker pool size")
	cmd.Flags().StringVar(&schedulerKin, "scheduler", "dynamic", "scheduler kind: dynamic|static (static only supported by precedence)")
	cmd.Flags().DurationVar(&stopAfter, "stop-after", 0, "stop time for periodic scenarios (e.g. the timer scenario), 0 for unbounded")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "if set, repeat the run on this cron schedule instead of running once")
	cmd.Flags().StringVar(&diagPath, "diagnostics", "", "path to a bbolt file to record run summaries into")
	cmd.Flags().StringVar(&natsURL, "physical-nats", "", "NATS server URL; when set, subscribes and forwards messages into the deadline-miss scenario's physical_in trigger, guarded by a schedule-flood breaker")
	cmd.Flags().StringVar(&natsSubject, "physical-nats-subject", "reactorcore.physical", "NATS subject to subscribe to when --physical-nats is set")
	return cmd
}

type runConfig struct {
	scenario  string
	workers   int
	scheduler string
	stopAfter time.Duration
	log       interface {
		Info(msg string, args ...any)
		Error(msg string, args ...any)
	}
	instr       *telemetry.Instruments
	diag        *diagnostics.Store
	natsURL     string
	natsSubject string
}

func runOnce(ctx context.Context, cfg runConfig) error {
	started := time.Now()

	arena, precedenceIDs := buildScenarioArena(cfg.scenario)
	if arena == nil {
		return fmt.Errorf("unknown scenario %q", cfg.scenario)
	}

	scheduler, workers, err := buildScheduler(cfg.scheduler, cfg.scenario, arena, precedenceIDs, cfg.workers)
	if err != nil {
		return err
	}

	opts := engine.Options{
		Arena:                 arena,
		Scheduler:             scheduler,
		Workers:               workers,
		Instr:                 cfg.instr,
		WaitForExternalEvents: cfg.natsURL != "",
	}
	if cfg.stopAfter > 0 {
		stop := int64(cfg.stopAfter)
		opts.StopTime = &stop
	}

	rt := engine.New(opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(gctx) })
	if cfg.natsURL != "" {
		source := physical.NewNATSSource(cfg.natsURL, cfg.natsSubject, "physical_in")
		g.Go(func() error { return source.Run(gctx, rt) })
		cfg.log.Info("physical source attached", "nats_url", cfg.natsURL, "subject", cfg.natsSubject, "trigger", "physical_in")
	}
	err = g.Wait()

	cfg.log.Info("scenario finished", "scenario", cfg.scenario, "duration", time.Since(started), "error", err)

	if cfg.diag != nil {
		summary := diagnostics.RunSummary{
			Scenario:   cfg.scenario,
			StartedAt:  started,
			FinishedAt: time.Now(),
		}
		if err != nil {
			summary.Err = err.Error()
		}
		if _, recErr := cfg.diag.Record(summary); recErr != nil {
			cfg.log.Error("failed to record diagnostics", "error", recErr)
		}
	}
	return err
}

// buildScenarioArena wires a named built-in scenario to its graph
// builder, discarding the typed result object: reactorctl runs
// scenarios to demonstrate the engine's scheduling behavior, not to
// assert on their outcomes the way the test suite does. precedenceIDs
// is only populated for the precedence scenario, which is the only one
// a static schedule can be hand-woven for below.
func buildScenarioArena(name string) (arena *graph.Arena, precedenceIDs *scenarios.PrecedenceReactions) {
	switch name {
	case "action-delay":
		return scenarios.BuildActionDelay(&scenarios.ActionDelayResult{}), nil
	case "microstep":
		return scenarios.BuildZeroDelayMicrostep(&scenarios.MicrostepResult{}), nil
	case "timer":
		return scenarios.BuildTimerPeriod(&scenarios.TimerResult{}, 0, 50*time.Millisecond), nil
	case "deadline-miss":
		a, _ := scenarios.BuildDeadlineMiss(&scenarios.DeadlineResult{}, 10*time.Millisecond)
		return a, nil
	case "parallel-chains":
		return scenarios.BuildParallelChains(scenarios.NewParallelChainsResult()), nil
	case "precedence":
		a, ids := scenarios.BuildPrecedenceWithIDs(&scenarios.PrecedenceResult{})
		return a, &ids
	default:
		return nil, nil
	}
}

// buildScheduler resolves the --scheduler flag to a concrete
// sched.Scheduler. The quasi-static scheduler needs a hand-woven
// Program, which only the precedence scenario supplies here, and it
// only makes sense single-threaded: a Program is a fixed per-worker
// instruction stream, and this CLI doesn't generate one for arbitrary
// topologies the way a real code generator would.
func buildScheduler(kind, scenario string, arena *graph.Arena, precedenceIDs *scenarios.PrecedenceReactions, workers int) (sched.Scheduler, int, error) {
	switch kind {
	case "", "dynamic":
		return sched.NewDynamicScheduler(arena), workers, nil
	case "static":
		if scenario != "precedence" || precedenceIDs == nil {
			return nil, 0, fmt.Errorf("reactorctl: --scheduler=static is only wired for the precedence scenario")
		}
		prog := precedenceProgram(*precedenceIDs)
		if err := prog.Validate(); err != nil {
			return nil, 0, fmt.Errorf("reactorctl: invalid static program: %w", err)
		}
		return sched.NewStaticScheduler(arena, prog), 1, nil
	default:
		return nil, 0, fmt.Errorf("reactorctl: unknown scheduler kind %q", kind)
	}
}

// precedenceProgram hand-weaves the single-worker instruction stream
// equivalent to the diamond topology's level order: top before
// left/right before bottom. A single worker makes every instruction
// naturally sequential, so no wait/notify pair is needed.
func precedenceProgram(ids scenarios.PrecedenceReactions) *sched.Program {
	maxID := ids.Top
	for _, id := range []graph.ReactionID{ids.Left, ids.Right, ids.Bottom} {
		if id > maxID {
			maxID = id
		}
	}
	return &sched.Program{
		Workers: [][]sched.Instruction{{
			{Op: sched.OpExecute, Arg: int(ids.Top)},
			{Op: sched.OpExecute, Arg: int(ids.Left)},
			{Op: sched.OpExecute, Arg: int(ids.Right)},
			{Op: sched.OpExecute, Arg: int(ids.Bottom)},
			{Op: sched.OpStop},
		}},
		Semaphores:  0,
		MaxReaction: int(maxID) + 1,
	}
}
