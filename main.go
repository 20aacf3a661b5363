package main

import (
	"connbench/benchmark"
	"connbench/benchmark/reuse"
	dbutils "connbench/dbUtils"
	"connbench/report"
	"connbench/worker"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	Version = "dev"
)

// Prepare zerolog
func setupLogging(disableLog bool, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var zlevel zerolog.Level
	if disableLog {
		zlevel = zerolog.Disabled
	} else if level == "debug" {
		zlevel = zerolog.DebugLevel
	} else {
		zlevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zlevel)

	// human-readable logs on a terminal, json otherwise
	if isatty.IsTerminal(os.Stderr.Fd()) {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{
			Out:        colorable.NewColorable(os.Stderr),
			TimeFormat: time.RFC3339Nano,
		})
	}
}

// Runs every selected scenario and writes the report to out. Returns an error when the
// benchmark cannot start or when the shared connection could not be opened.
func run(ctx context.Context, args *BenchmarkArgs, progress io.Writer, out io.Writer) error {
	connector, err := dbutils.Connector(args.Connection)
	if err != nil {
		return fmt.Errorf("creating connector: %w", err)
	}

	bench := reuse.New(connector, args.Queries)
	scenarios, err := benchmark.Filter(bench.Scenarios(), args.Scenarios)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	policy := args.Policy
	zlog.Info().Str("run", runID).Str("driver", args.Connection.Driver).
		Int("scenarios", len(scenarios)).Int("warmup", policy.Warmup).
		Int("iterations", policy.Iterations).Msg("Run started")

	w := worker.NewWorker(policy)
	if progress != nil {
		w.SetProgress(progress)
	}
	results := w.Run(ctx, scenarios)

	report.Print(out, report.Run{
		ID:      runID,
		Driver:  args.Connection.Driver,
		Server:  args.Connection.Server,
		Catalog: args.Connection.Catalog,
		Policy:  policy,
		Configs: bench.GetConfigs(),
	}, results)
	zlog.Info().Str("run", runID).Stringer("state", worker.Reported).Msg("Run ended")

	for _, r := range results {
		if errors.Is(r.Metric.Err, benchmark.ErrSetup) {
			return fmt.Errorf("scenario %s: %w", r.Scenario.Name, r.Metric.Err)
		}
	}
	return nil
}

func action(c *cli.Context) error {
	setupLogging(c.Bool("no-log"), c.String("level"))

	args, err := buildArgs(c.String("conf"))
	if err != nil {
		return err
	}

	var progress io.Writer
	if c.Bool("progress") {
		progress = os.Stderr
	}

	return run(c.Context, args, progress, os.Stdout)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "connbench",
		Usage:   "compares reusing a database connection with opening one per query",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "conf", Usage: "Benchmark config file (yaml)"},
			&cli.BoolFlag{Name: "no-log", Usage: "Disables the log"},
			&cli.StringFlag{Name: "level", Value: "info", Usage: "Log level (info|debug)"},
			&cli.BoolFlag{Name: "progress", Usage: "Shows a progress bar per scenario"},
		},
		Action: action,
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
