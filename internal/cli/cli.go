// Package cli implements the command-line interface for txagg.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/eunmann/txagg/internal/logctx"
	"github.com/eunmann/txagg/pkg/aggregate"
	"github.com/eunmann/txagg/pkg/fileutil"
	"github.com/eunmann/txagg/pkg/gen"
	"github.com/eunmann/txagg/pkg/humanfmt"
	"github.com/eunmann/txagg/pkg/keyindex"
	"github.com/eunmann/txagg/pkg/logging"
	"github.com/eunmann/txagg/pkg/membudget"
	"github.com/eunmann/txagg/pkg/memdiag"
	"github.com/eunmann/txagg/pkg/report"
	"github.com/eunmann/txagg/pkg/source"
)

const usage = "usage: txagg <command> [options]\ncommands: run, gen"

// Run executes the CLI with the given arguments. The report goes to
// stdout; logs go to stderr.
func Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout)
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "run":
		return runAggregate(ctx, args[1:], out)
	case "gen":
		return runGen(ctx, args[1:], out)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func runAggregate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	workers := fs.Int("workers", aggregate.DefaultWorkers, "number of parallel workers")
	top := fs.Int("top", report.DefaultTopK, "number of keys to rank")
	minChunk := fs.String("min-chunk", "1MiB", "smallest chunk width (e.g. 256KiB, 4MiB)")
	memBudget := fs.String("mem-budget", "", "memory budget for decompressed input (e.g. 4GiB); env "+membudget.EnvVar)
	tmpDir := fs.String("tmp", "", "directory for downloaded S3 objects")
	parquetOut := fs.String("parquet-out", "", "also write the ranked rows to this Parquet file")
	lookup := fs.String("lookup", "", "comma-separated keys whose totals are printed after the report")
	memDebug := fs.Bool("mem-debug", false, "log heap usage periodically (env "+memdiag.EnvDebug+"=1)")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-readable console logs")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one input path or s3:// URI is required")
	}
	input := fs.Arg(0)

	ctx = initLogging(ctx, *debug, *human)

	chunkBytes, err := membudget.ParseHumanSize(*minChunk)
	if err != nil {
		return fmt.Errorf("invalid --min-chunk %q: %w", *minChunk, err)
	}
	lookupKeys, err := parseKeys(*lookup)
	if err != nil {
		return err
	}
	budget, err := determineMemoryBudget(*memBudget)
	if err != nil {
		return err
	}

	cfg := aggregate.DefaultConfig()
	cfg.Workers = *workers
	cfg.TopK = *top
	cfg.MinChunkBytes = int(chunkBytes)

	agg, err := aggregate.New(cfg)
	if err != nil {
		return err
	}
	diagCfg := memdiag.DefaultConfig()
	diagCfg.Enabled = diagCfg.Enabled || *memDebug
	tracker := memdiag.NewTracker(diagCfg)
	tracker.Start()
	defer tracker.Stop()

	tracker.SetPhase("aggregate")
	res, err := agg.RunURI(ctx, input, source.Options{Budget: budget, TempDir: *tmpDir})
	if err != nil {
		return err
	}
	tracker.SetPhase("report")
	tracker.LogWithBudget("aggregate_complete", budget.Peak(), budget.Total())

	if err := report.Render(out, res.Report); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	fmt.Fprintf(out, "\nProcessed %s in %s (%s)\n",
		humanfmt.Bytes(res.Bytes), humanfmt.Duration(res.Elapsed), humanfmt.Throughput(res.Bytes, res.Elapsed))

	if *parquetOut != "" {
		if err := report.WriteParquet(*parquetOut, res.Report.Top); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d rows to %s\n", len(res.Report.Top), *parquetOut)
	}

	if len(lookupKeys) > 0 {
		ix, err := keyindex.Build(res.Totals)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		for _, k := range lookupKeys {
			t, ok := ix.Lookup(k)
			if !ok {
				fmt.Fprintf(out, "Key %d: not found\n", k)
				continue
			}
			fmt.Fprintf(out, "Key %d: total %s, count %s, average %.2f\n",
				k, humanfmt.Amount(t.Sum), humanfmt.Grouped(t.Count), t.Sum/float64(t.Count))
		}
	}
	return nil
}

func runGen(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	sizeMiB := fs.Float64("size", 0, "target file size in MiB")
	errorRate := fs.Float64("error-rate", 0, "probability of a fuzzed row (0.0 to 1.0)")
	duplicateRate := fs.Float64("duplicate-rate", 0, "probability of repeating the previous row (0.0 to 1.0)")
	seed := fs.Int64("seed", 42, "random seed")
	outPath := fs.String("out", "transactions.csv", "output file (.gz and .zst are compressed)")
	force := fs.Bool("force", false, "overwrite an existing output file")
	stream := fs.Bool("stream", false, "write rows to stdout until interrupted instead of a file")
	delay := fs.Duration("delay", 100*time.Millisecond, "pause between streamed rows")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-readable console logs")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx = initLogging(ctx, *debug, *human)

	cfg := gen.DefaultConfig()
	cfg.ErrorRate = *errorRate
	cfg.DuplicateRate = *duplicateRate
	cfg.Seed = *seed
	g, err := gen.New(cfg)
	if err != nil {
		return err
	}

	if *stream {
		if _, err := io.WriteString(out, gen.Header); err != nil {
			return err
		}
		_, err := gen.Stream(ctx, g, gen.WriterEmitter{W: out}, *delay)
		return err
	}

	if *sizeMiB <= 0 {
		return errors.New("--size is required and must be positive")
	}
	if fileutil.Exists(*outPath) && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", *outPath)
	}
	stats, err := g.WriteFile(*outPath, int64(*sizeMiB*humanfmt.MiB))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Generated %s: %s rows, %s\n", *outPath, humanfmt.Grouped(stats.Rows), humanfmt.Bytes(stats.Bytes))
	return nil
}

// initLogging configures the global logger and makes it the default for
// context-scoped logging.
func initLogging(ctx context.Context, debug, human bool) context.Context {
	logging.Init(debug, human)
	logctx.SetDefaultLogger(*logging.L())
	return logctx.WithLogger(ctx, *logging.L())
}

// parseKeys parses the --lookup list.
func parseKeys(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var keys []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		k, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --lookup key %q", part)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// determineMemoryBudget resolves the budget with precedence
// --mem-budget > TXAGG_MEM_BUDGET > half of system RAM.
func determineMemoryBudget(flagValue string) (*membudget.Budget, error) {
	var budget *membudget.Budget
	switch env := os.Getenv(membudget.EnvVar); {
	case flagValue != "":
		n, err := membudget.ParseHumanSize(flagValue)
		if err != nil {
			return nil, fmt.Errorf("invalid --mem-budget %q: %w", flagValue, err)
		}
		budget = membudget.New(membudget.Config{TotalBytes: n, Source: membudget.BudgetSourceCLI})
	case env != "":
		n, err := membudget.ParseHumanSize(env)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", membudget.EnvVar, env, err)
		}
		budget = membudget.New(membudget.Config{TotalBytes: n, Source: membudget.BudgetSourceEnv})
	default:
		budget = membudget.NewFromSystemRAM()
	}

	logging.L().Debug().
		Uint64("budget_bytes", budget.Total()).
		Str("budget_source", string(budget.Source())).
		Msg("memory budget")
	return budget, nil
}
