package cli

import (
	"bytes"
	"context"
	"flag"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/subcommands"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/txengine/internal/config"
	"github.com/congo-pay/txengine/internal/ledger"
	"github.com/congo-pay/txengine/internal/logging"
	"github.com/congo-pay/txengine/internal/txcsv"
)

const sampleInput = `type, client, tx, amount
deposit, 1, 1, 1.0
deposit, 2, 2, 2.0
deposit, 1, 3, 2.0
withdrawal, 1, 4, 1.5
withdrawal, 2, 5, 3.0
not-a-type, 2, 6, 1.0
dispute, 1, 1,
chargeback, 1, 1,
deposit, 1, 7, 10
`

func testDeps(stdout *bytes.Buffer) Deps {
	return Deps{
		Cfg: config.Config{
			LogLevel:      "error",
			Precision:     ledger.DefaultPrecision,
			OutcomeStream: "ledger:outcomes",
			StreamMaxLen:  1000,
			ExportTimeout: time.Second,
		},
		Logger: logging.Discard(),
		Stdin:  strings.NewReader(""),
		Stdout: stdout,
	}
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transactions.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, cmd subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(fs)
	require.NoError(t, fs.Parse(args))
	return cmd.Execute(context.Background(), fs)
}

func TestProcessWritesAccounts(t *testing.T) {
	var out bytes.Buffer
	cmd := &processCmd{deps: testDeps(&out)}

	status := execute(t, cmd, writeInput(t, sampleInput))
	require.Equal(t, subcommands.ExitSuccess, status)

	assert.Equal(t, "client,available,held,total,locked\n"+
		"1,0.5000,0.0000,0.5000,true\n"+
		"2,2.0000,0.0000,2.0000,false\n", out.String())
}

func TestProcessReadsStdin(t *testing.T) {
	var out bytes.Buffer
	deps := testDeps(&out)
	deps.Stdin = strings.NewReader("type,client,tx,amount\ndeposit,4,1,3.14159\n")
	cmd := &processCmd{deps: deps}

	require.Equal(t, subcommands.ExitSuccess, execute(t, cmd, "-precision", "2", "-"))
	assert.Equal(t, "client,available,held,total,locked\n4,3.14,0.00,3.14,false\n", out.String())
}

func TestProcessPublishesOutcomesToRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	var out bytes.Buffer
	deps := testDeps(&out)
	deps.Cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	cmd := &processCmd{deps: deps}

	require.Equal(t, subcommands.ExitSuccess, execute(t, cmd, writeInput(t, sampleInput)))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	entries, err := client.XRange(context.Background(), "ledger:outcomes", "-", "+").Result()
	require.NoError(t, err)

	// the malformed row never reaches the engine
	require.Len(t, entries, 8)
	var results []string
	for _, e := range entries {
		results = append(results, e.Values["result"].(string))
	}
	assert.Equal(t, []string{
		"applied", "applied", "applied", "applied",
		"insufficient_funds", "applied", "applied", "account_locked",
	}, results)
	assert.Equal(t, "8", entries[7].Values["seq"])
}

func TestProcessUsageErrors(t *testing.T) {
	var out bytes.Buffer
	cmd := &processCmd{deps: testDeps(&out)}
	assert.Equal(t, subcommands.ExitUsageError, execute(t, cmd))
	assert.Equal(t, subcommands.ExitUsageError, execute(t, &processCmd{deps: testDeps(&out)}, "-precision", "99", "x.csv"))
}

func TestProcessRejectsPrecisionBeyondInt32(t *testing.T) {
	var out bytes.Buffer
	path := writeInput(t, "type,client,tx,amount\ndeposit,1,1,1.23\n")
	cmd := &processCmd{deps: testDeps(&out)}
	assert.Equal(t, subcommands.ExitUsageError, execute(t, cmd, "-precision", "4294967298", path))
	assert.Empty(t, out.String())
}

func TestProcessMissingFile(t *testing.T) {
	var out bytes.Buffer
	cmd := &processCmd{deps: testDeps(&out)}
	assert.Equal(t, subcommands.ExitFailure, execute(t, cmd, filepath.Join(t.TempDir(), "missing.csv")))
	assert.Empty(t, out.String())
}

func TestGenerateIsDeterministicAndParseable(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, generate(&a, rand.New(rand.NewSource(7)), 500, 10, 1000))
	require.NoError(t, generate(&b, rand.New(rand.NewSource(7)), 500, 10, 1000))
	require.Equal(t, a.String(), b.String())

	recs, err := txcsv.NewReader(strings.NewReader(a.String()), ledger.DefaultPrecision).
		ReadAll(func(e *txcsv.RowError) { t.Fatalf("generated malformed row: %v", e) })
	require.NoError(t, err)
	require.Len(t, recs, 500)

	res := ledger.Process(recs)
	applied := 0
	for _, o := range res.Outcomes {
		if o.Applied() {
			applied++
		}
	}
	assert.Greater(t, applied, 0)
	for _, acc := range res.Accounts {
		assert.False(t, acc.Available.IsNegative())
		assert.False(t, acc.Held.IsNegative())
	}
}

func TestGenerateCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := &generateCmd{deps: testDeps(&out)}
	require.Equal(t, subcommands.ExitSuccess, execute(t, cmd, "-n", "3", "-seed", "1"))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 4)

	assert.Equal(t, subcommands.ExitUsageError, execute(t, &generateCmd{deps: testDeps(&out)}, "-clients", "0"))
}

func TestGenerateRejectsOverflowingMaxAmount(t *testing.T) {
	var out bytes.Buffer
	cmd := &generateCmd{deps: testDeps(&out)}
	assert.Equal(t, subcommands.ExitUsageError,
		execute(t, cmd, "-n", "5", "-seed", "1", "-max-amount", "1000000000000000"))
	assert.Empty(t, out.String())
}
