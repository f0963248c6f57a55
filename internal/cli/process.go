package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/txengine/internal/export"
	"github.com/congo-pay/txengine/internal/infra"
	"github.com/congo-pay/txengine/internal/ledger"
	"github.com/congo-pay/txengine/internal/outcome"
	"github.com/congo-pay/txengine/internal/txcsv"
)

// processCmd runs a transaction file through the ledger engine.
type processCmd struct {
	deps        Deps
	precision   int
	logOutcomes bool
	noExport    bool
}

func (*processCmd) Name() string     { return "process" }
func (*processCmd) Synopsis() string { return "apply a transaction CSV and print balances" }
func (*processCmd) Usage() string {
	return `txengine process [-precision <n>] [-log-outcomes] [-no-export] <transactions.csv|->

  Reads type,client,tx,amount records in order, applies them to the ledger and
  writes client,available,held,total,locked rows to stdout, sorted by client.
  Outcomes go to the Redis stream when REDIS_URL is set and the snapshot is
  exported to Postgres when DATABASE_URL is set.
`
}

func (c *processCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.precision, "precision", int(c.deps.Cfg.Precision), "fractional digits kept for amounts (extra digits are truncated)")
	f.BoolVar(&c.logOutcomes, "log-outcomes", false, "log every record outcome (applied at debug, rejected at warn)")
	f.BoolVar(&c.noExport, "no-export", false, "skip the Postgres snapshot export even if DATABASE_URL is set")
}

func (c *processCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "process expects exactly one input file")
		return subcommands.ExitUsageError
	}

	if c.precision < math.MinInt32 || c.precision > math.MaxInt32 {
		fmt.Fprintf(os.Stderr, "Error: precision %d is out of range\n", c.precision)
		return subcommands.ExitUsageError
	}
	cfg := c.deps.Cfg
	cfg.Precision = int32(c.precision)
	if c.noExport {
		cfg.DatabaseURL = ""
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	c.deps.Cfg = cfg

	if err := c.run(ctx, f.Arg(0)); err != nil {
		c.deps.Logger.Error("process failed", "input", f.Arg(0), "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *processCmd) run(ctx context.Context, path string) error {
	logger := c.deps.Logger
	cfg := c.deps.Cfg
	started := time.Now().UTC()
	runID := uuid.New()

	in, closeInput, err := c.open(path)
	if err != nil {
		return err
	}
	defer closeInput()

	publishers := outcome.Multi{}
	if c.logOutcomes {
		publishers = append(publishers, outcome.NewLogPublisher(logger.With("run_id", runID.String())))
	}
	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		publishers = append(publishers, outcome.NewRedisPublisher(client, cfg.OutcomeStream, outcome.WithMaxLen(cfg.StreamMaxLen)))
	}

	engine := ledger.NewEngine(ledger.WithPrecision(cfg.Precision))
	reader := txcsv.NewReader(in, engine.Precision())
	malformed := 0

	for seq := 1; ; {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *txcsv.RowError
		if errors.As(err, &rowErr) {
			malformed++
			logger.Warn("skipping malformed row", "line", rowErr.Line, "error", rowErr.Err)
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		if err := publishers.Publish(ctx, engine.Outcome(seq, rec)); err != nil {
			return err
		}
		seq++
	}
	if err := publishers.Flush(ctx); err != nil {
		return err
	}

	accounts := engine.Accounts()
	stats := engine.Stats()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return txcsv.NewWriter(c.deps.Stdout, engine.Precision()).WriteAccounts(accounts)
	})
	if cfg.DatabaseURL != "" {
		g.Go(func() error {
			return c.export(gctx, export.Run{
				ID:         runID,
				Source:     path,
				StartedAt:  started,
				FinishedAt: time.Now().UTC(),
				Stats:      stats,
				Accounts:   accounts,
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("run complete",
		"run_id", runID.String(),
		"records", stats.Records,
		"applied", stats.Applied,
		"rejected", stats.RejectedTotal(),
		"malformed", malformed,
		"accounts", len(accounts),
		"duration", time.Since(started).String(),
	)
	for reason, n := range stats.Rejected {
		logger.Debug("rejections", "reason", reason, "count", n)
	}
	return nil
}

func (c *processCmd) open(path string) (io.Reader, func(), error) {
	if path == "-" {
		return c.deps.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func (c *processCmd) export(ctx context.Context, run export.Run) error {
	ctx, cancel := context.WithTimeout(ctx, c.deps.Cfg.ExportTimeout)
	defer cancel()

	pool, err := infra.NewPostgresPool(ctx, c.deps.Cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	exporter := export.NewPostgresExporter(pool)
	if err := exporter.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := exporter.Export(ctx, run); err != nil {
		return err
	}
	c.deps.Logger.Info("snapshot exported", "run_id", run.ID.String(), "accounts", len(run.Accounts))
	return nil
}
