package cli

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/txengine/internal/ledger"
	"github.com/congo-pay/txengine/internal/txcsv"
)

// generateCmd writes a random transaction file for load and soak testing.
type generateCmd struct {
	deps      Deps
	count     int
	clients   int
	maxAmount int64
	seed      int64
}

func (*generateCmd) Name() string     { return "generate" }
func (*generateCmd) Synopsis() string { return "write a random transaction CSV to stdout" }
func (*generateCmd) Usage() string {
	return `txengine generate [-n <records>] [-clients <n>] [-max-amount <n>] [-seed <n>]

  Emits a type,client,tx,amount file mixing deposits, withdrawals and
  dispute-class records that reference earlier transactions. The same seed
  always produces the same file.
`
}

func (c *generateCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.count, "n", 1000, "number of records")
	f.IntVar(&c.clients, "clients", 100, "number of distinct clients")
	f.Int64Var(&c.maxAmount, "max-amount", 100_000, "upper bound for generated amounts")
	f.Int64Var(&c.seed, "seed", 0, "random seed (0 picks one from the clock)")
}

func (c *generateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.count < 0 || c.clients < 1 || c.clients > 1<<16 || c.maxAmount < 1 || c.maxAmount > math.MaxInt64/10_000 {
		fmt.Fprintln(os.Stderr, "generate: -n must be >= 0, -clients in [1, 65536], -max-amount >= 1")
		return subcommands.ExitUsageError
	}
	seed := c.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if err := generate(c.deps.Stdout, rand.New(rand.NewSource(seed)), c.count, c.clients, c.maxAmount); err != nil {
		c.deps.Logger.Error("generate failed", "error", err)
		return subcommands.ExitFailure
	}
	c.deps.Logger.Debug("fixture generated", "records", c.count, "seed", seed)
	return subcommands.ExitSuccess
}

// generate writes n records. Deposits and withdrawals get fresh tx ids;
// dispute-class records mostly point at an earlier id of the same client so
// the dispute paths are exercised, and occasionally at a random one.
func generate(w io.Writer, rng *rand.Rand, n, clients int, maxAmount int64) error {
	out := csv.NewWriter(w)
	if err := out.Write(txcsv.InputHeader); err != nil {
		return err
	}

	type issued struct {
		client ledger.ClientID
		tx     ledger.TxID
	}
	var history []issued
	var next ledger.TxID = 1

	for i := 0; i < n; i++ {
		var kind ledger.Kind
		switch p := rng.Intn(100); {
		case p < 40 || len(history) == 0:
			kind = ledger.KindDeposit
		case p < 65:
			kind = ledger.KindWithdrawal
		case p < 80:
			kind = ledger.KindDispute
		case p < 90:
			kind = ledger.KindResolve
		default:
			kind = ledger.KindChargeback
		}

		var row []string
		if kind.Funding() {
			client := ledger.ClientID(rng.Intn(clients))
			amount := decimal.New(rng.Int63n(maxAmount*10_000)+1, -4)
			row = []string{kind.String(), strconv.Itoa(int(client)), strconv.FormatUint(uint64(next), 10), amount.String()}
			history = append(history, issued{client: client, tx: next})
			next++
		} else {
			ref := history[rng.Intn(len(history))]
			if rng.Intn(20) == 0 {
				ref = issued{client: ledger.ClientID(rng.Intn(clients)), tx: ledger.TxID(rng.Int63n(int64(next) + 1))}
			}
			row = []string{kind.String(), strconv.Itoa(int(ref.client)), strconv.FormatUint(uint64(ref.tx), 10), ""}
		}
		if err := out.Write(row); err != nil {
			return err
		}
	}

	out.Flush()
	return out.Error()
}
