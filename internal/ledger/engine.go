package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Engine owns the account map and the transaction store and applies records
// to both. It has exactly one writer; hosts that share an Engine between
// goroutines must serialise every call, since a single dispute mutates the
// store and an account together.
type Engine struct {
	precision int32
	accounts  map[ClientID]*Account
	store     *Store
	stats     Stats
}

// Stats counts processed records.
type Stats struct {
	Records  int
	Applied  int
	Rejected map[string]int
}

// RejectedTotal sums rejections across all reasons.
func (s Stats) RejectedTotal() int {
	n := 0
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// Option customises an Engine.
type Option func(*Engine)

// WithPrecision sets the number of fractional digits amounts are truncated to.
func WithPrecision(places int32) Option {
	return func(e *Engine) {
		if places >= 0 {
			e.precision = places
		}
	}
}

// NewEngine creates an engine with no accounts and an empty store.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		precision: DefaultPrecision,
		accounts:  make(map[ClientID]*Account),
		store:     NewStore(),
		stats:     Stats{Rejected: make(map[string]int)},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Precision returns the configured number of fractional digits.
func (e *Engine) Precision() int32 {
	return e.precision
}

// Store exposes the transaction history for read-only inspection.
func (e *Engine) Store() *Store {
	return e.store
}

// Apply evaluates one record against the current state. A nil result means
// the record was applied; otherwise the returned error wraps one of the
// package's sentinel errors and no state was changed.
func (e *Engine) Apply(rec Record) error {
	var err error
	switch rec.Kind {
	case KindDeposit:
		err = e.deposit(rec)
	case KindWithdrawal:
		err = e.withdraw(rec)
	case KindDispute:
		err = e.dispute(rec)
	case KindResolve:
		err = e.resolve(rec)
	case KindChargeback:
		err = e.chargeback(rec)
	default:
		err = fmt.Errorf("unsupported transaction kind %s", rec.Kind)
	}

	e.stats.Records++
	if err != nil {
		e.stats.Rejected[Reason(err)]++
	} else {
		e.stats.Applied++
	}
	return err
}

// Outcome applies rec and wraps the result with its input position.
func (e *Engine) Outcome(seq int, rec Record) Outcome {
	return Outcome{Seq: seq, Record: rec, Err: e.Apply(rec)}
}

// Account returns a copy of the client's account.
func (e *Engine) Account(id ClientID) (Account, bool) {
	acc, ok := e.accounts[id]
	if !ok {
		return Account{}, false
	}
	return *acc, true
}

// Accounts returns a snapshot of every account ordered by client id.
func (e *Engine) Accounts() []Account {
	out := make([]Account, 0, len(e.accounts))
	for _, acc := range e.accounts {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}

// Stats returns a copy of the processing counters.
func (e *Engine) Stats() Stats {
	rejected := make(map[string]int, len(e.stats.Rejected))
	for k, v := range e.stats.Rejected {
		rejected[k] = v
	}
	return Stats{Records: e.stats.Records, Applied: e.stats.Applied, Rejected: rejected}
}

// Result is the outcome of a whole batch.
type Result struct {
	Accounts []Account
	Outcomes []Outcome
}

// Process folds records through a fresh engine in input order.
func Process(records []Record, opts ...Option) Result {
	e := NewEngine(opts...)
	outcomes := make([]Outcome, 0, len(records))
	for i, rec := range records {
		outcomes = append(outcomes, e.Outcome(i+1, rec))
	}
	return Result{Accounts: e.Accounts(), Outcomes: outcomes}
}

// amount validates and truncates the amount carried by a funding record.
func (e *Engine) amount(rec Record) (decimal.Decimal, error) {
	if !rec.Amount.Valid {
		return decimal.Zero, fmt.Errorf("%s tx %d: missing amount: %w", rec.Kind, rec.Tx, ErrInvalidAmount)
	}
	amt := rec.Amount.Decimal.Truncate(e.precision)
	if !amt.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s tx %d: amount %s: %w", rec.Kind, rec.Tx, rec.Amount.Decimal, ErrInvalidAmount)
	}
	return amt, nil
}

// account returns the existing account or a zero-value one that is not yet
// registered. Callers register it with commit once the record is applied.
func (e *Engine) account(id ClientID) Account {
	if acc, ok := e.accounts[id]; ok {
		return *acc
	}
	return Account{Client: id}
}

func (e *Engine) commit(acc Account) {
	if cur, ok := e.accounts[acc.Client]; ok {
		*cur = acc
		return
	}
	e.accounts[acc.Client] = &acc
}

func (e *Engine) deposit(rec Record) error {
	amt, err := e.amount(rec)
	if err != nil {
		return err
	}
	acc := e.account(rec.Client)
	if acc.Locked {
		return fmt.Errorf("deposit tx %d to client %d: %w", rec.Tx, rec.Client, ErrAccountLocked)
	}
	if err := e.store.Record(StoredTransaction{ID: rec.Tx, Client: rec.Client, Kind: KindDeposit, Amount: amt}); err != nil {
		return err
	}
	acc.Available = acc.Available.Add(amt)
	e.commit(acc)
	return nil
}

func (e *Engine) withdraw(rec Record) error {
	amt, err := e.amount(rec)
	if err != nil {
		return err
	}
	acc := e.account(rec.Client)
	if acc.Locked {
		return fmt.Errorf("withdrawal tx %d from client %d: %w", rec.Tx, rec.Client, ErrAccountLocked)
	}
	if _, err := e.store.Lookup(rec.Tx); err == nil {
		return fmt.Errorf("tx %d: %w", rec.Tx, ErrDuplicateTransaction)
	}
	if acc.Available.LessThan(amt) {
		return fmt.Errorf("withdrawal tx %d of %s from client %d with %s available: %w",
			rec.Tx, amt, rec.Client, acc.Available, ErrInsufficientFunds)
	}
	if err := e.store.Record(StoredTransaction{ID: rec.Tx, Client: rec.Client, Kind: KindWithdrawal, Amount: amt}); err != nil {
		return err
	}
	acc.Available = acc.Available.Sub(amt)
	e.commit(acc)
	return nil
}

// referenced resolves the stored transaction targeted by a dispute-class
// record and checks ownership and the expected state.
func (e *Engine) referenced(rec Record, want DisputeState) (StoredTransaction, Account, error) {
	tx, err := e.store.Lookup(rec.Tx)
	if err != nil {
		return StoredTransaction{}, Account{}, fmt.Errorf("%s: %w", rec.Kind, err)
	}
	if tx.Client != rec.Client {
		return StoredTransaction{}, Account{}, fmt.Errorf("%s tx %d by client %d, owned by client %d: %w",
			rec.Kind, rec.Tx, rec.Client, tx.Client, ErrClientMismatch)
	}
	if tx.State != want {
		return StoredTransaction{}, Account{}, fmt.Errorf("%s tx %d in state %s: %w",
			rec.Kind, rec.Tx, tx.State, ErrInvalidDisputeTransition)
	}
	return tx, e.account(tx.Client), nil
}

// dispute moves the referenced amount from available to held. A dispute larger
// than the current available balance is rejected with ErrInsufficientFunds so
// that available never goes negative.
func (e *Engine) dispute(rec Record) error {
	tx, acc, err := e.referenced(rec, StateNormal)
	if err != nil {
		return err
	}
	if acc.Available.LessThan(tx.Amount) {
		return fmt.Errorf("dispute tx %d of %s with %s available: %w", tx.ID, tx.Amount, acc.Available, ErrInsufficientFunds)
	}
	if err := e.store.MarkDisputed(tx.ID); err != nil {
		return err
	}
	acc.Available = acc.Available.Sub(tx.Amount)
	acc.Held = acc.Held.Add(tx.Amount)
	e.commit(acc)
	return nil
}

func (e *Engine) resolve(rec Record) error {
	tx, acc, err := e.referenced(rec, StateDisputed)
	if err != nil {
		return err
	}
	if err := e.store.MarkResolved(tx.ID); err != nil {
		return err
	}
	acc.Held = acc.Held.Sub(tx.Amount)
	acc.Available = acc.Available.Add(tx.Amount)
	e.commit(acc)
	return nil
}

func (e *Engine) chargeback(rec Record) error {
	tx, acc, err := e.referenced(rec, StateDisputed)
	if err != nil {
		return err
	}
	if err := e.store.MarkChargedBack(tx.ID); err != nil {
		return err
	}
	acc.Held = acc.Held.Sub(tx.Amount)
	acc.Locked = true
	e.commit(acc)
	return nil
}
