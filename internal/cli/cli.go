// Package cli holds the txengine subcommands.
package cli

import (
	"io"
	"log/slog"

	"github.com/google/subcommands"

	"github.com/congo-pay/txengine/internal/config"
)

// Deps aggregates what the commands share.
type Deps struct {
	Cfg    config.Config
	Logger *slog.Logger
	Stdin  io.Reader
	Stdout io.Writer
}

// Register adds every txengine command to c.
func Register(c *subcommands.Commander, deps Deps) {
	c.Register(&processCmd{deps: deps}, "ledger")
	c.Register(&generateCmd{deps: deps}, "fixtures")
}
