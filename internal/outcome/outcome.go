// Package outcome delivers per-record ledger outcomes to downstream consumers.
package outcome

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/congo-pay/txengine/internal/ledger"
)

// Publisher delivers outcomes. Implementations may buffer; Flush pushes out
// anything still pending.
type Publisher interface {
	Publish(ctx context.Context, o ledger.Outcome) error
	Flush(ctx context.Context) error
}

// Fields flattens an outcome into string key/value pairs shared by every publisher.
func Fields(o ledger.Outcome) map[string]string {
	amount := ""
	if o.Record.Amount.Valid {
		amount = o.Record.Amount.Decimal.String()
	}
	detail := ""
	if o.Err != nil {
		detail = o.Err.Error()
	}
	return map[string]string{
		"seq":    strconv.Itoa(o.Seq),
		"type":   o.Record.Kind.String(),
		"client": strconv.FormatUint(uint64(o.Record.Client), 10),
		"tx":     strconv.FormatUint(uint64(o.Record.Tx), 10),
		"amount": amount,
		"result": o.Reason(),
		"detail": detail,
	}
}

// LogPublisher writes outcomes to the structured logger: applied records at
// debug level, rejections at warn.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a logging publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish writes the outcome to the structured logger.
func (p *LogPublisher) Publish(ctx context.Context, o ledger.Outcome) error {
	if p == nil || p.logger == nil {
		return nil
	}
	attrs := []any{
		slog.Int("seq", o.Seq),
		slog.String("type", o.Record.Kind.String()),
		slog.Uint64("client", uint64(o.Record.Client)),
		slog.Uint64("tx", uint64(o.Record.Tx)),
	}
	if o.Record.Amount.Valid {
		attrs = append(attrs, slog.String("amount", o.Record.Amount.Decimal.String()))
	}
	if o.Applied() {
		p.logger.DebugContext(ctx, "transaction applied", attrs...)
		return nil
	}
	attrs = append(attrs, slog.String("reason", o.Reason()), slog.Any("error", o.Err))
	p.logger.WarnContext(ctx, "transaction rejected", attrs...)
	return nil
}

// Flush is a no-op; log lines are written immediately.
func (p *LogPublisher) Flush(context.Context) error { return nil }

// Multi fans an outcome out to several publishers.
type Multi []Publisher

// Publish delivers to every publisher and joins their errors.
func (m Multi) Publish(ctx context.Context, o ledger.Outcome) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every publisher and joins their errors.
func (m Multi) Flush(ctx context.Context) error {
	var errs []error
	for _, p := range m {
		if err := p.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
