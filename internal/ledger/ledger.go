package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of fractional digits kept for every amount.
// Amounts with more digits are truncated, never rounded.
const DefaultPrecision int32 = 4

var (
	// ErrDuplicateTransaction indicates a deposit or withdrawal reused a
	// transaction identifier that is already recorded.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrTransactionNotFound indicates a dispute-class event referenced an
	// unknown transaction.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrClientMismatch indicates a dispute-class event named a client that
	// does not own the referenced transaction.
	ErrClientMismatch = errors.New("client mismatch")

	// ErrInvalidDisputeTransition indicates the referenced transaction is not
	// in a state that permits the requested dispute transition.
	ErrInvalidDisputeTransition = errors.New("invalid dispute transition")

	// ErrAccountLocked occurs when a deposit or withdrawal targets a locked account.
	ErrAccountLocked = errors.New("account locked")

	// ErrInsufficientFunds occurs when available funds cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount indicates a missing, zero or negative amount.
	ErrInvalidAmount = errors.New("invalid amount")
)

// ClientID identifies a client account.
type ClientID uint16

// TxID identifies a deposit or withdrawal for the whole run.
type TxID uint32

// Kind is the type of an incoming transaction record.
type Kind uint8

const (
	KindDeposit Kind = iota + 1
	KindWithdrawal
	KindDispute
	KindResolve
	KindChargeback
)

var kindNames = map[Kind]string{
	KindDeposit:    "deposit",
	KindWithdrawal: "withdrawal",
	KindDispute:    "dispute",
	KindResolve:    "resolve",
	KindChargeback: "chargeback",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Funding reports whether the kind moves money in or out of an account, as
// opposed to referencing an earlier transaction.
func (k Kind) Funding() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// ParseKind maps a record type name such as "deposit" to its Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown transaction type %q", s)
}

// Record is a single parsed input transaction.
type Record struct {
	Kind   Kind
	Client ClientID
	Tx     TxID
	// Amount is only meaningful for deposits and withdrawals.
	Amount decimal.NullDecimal
}

// Deposit builds a deposit record.
func Deposit(client ClientID, tx TxID, amount decimal.Decimal) Record {
	return Record{Kind: KindDeposit, Client: client, Tx: tx, Amount: decimal.NewNullDecimal(amount)}
}

// Withdrawal builds a withdrawal record.
func Withdrawal(client ClientID, tx TxID, amount decimal.Decimal) Record {
	return Record{Kind: KindWithdrawal, Client: client, Tx: tx, Amount: decimal.NewNullDecimal(amount)}
}

// Dispute builds a dispute record against tx.
func Dispute(client ClientID, tx TxID) Record {
	return Record{Kind: KindDispute, Client: client, Tx: tx}
}

// Resolve builds a resolve record against tx.
func Resolve(client ClientID, tx TxID) Record {
	return Record{Kind: KindResolve, Client: client, Tx: tx}
}

// Chargeback builds a chargeback record against tx.
func Chargeback(client ClientID, tx TxID) Record {
	return Record{Kind: KindChargeback, Client: client, Tx: tx}
}

// Account is the balance state of one client.
type Account struct {
	Client    ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Locked    bool
}

// Total is always derived from available and held funds.
func (a Account) Total() decimal.Decimal {
	return a.Available.Add(a.Held)
}

// Outcome is the result of applying one record. Err is nil when the record
// was applied.
type Outcome struct {
	// Seq is the 1-based position of the record in the input.
	Seq    int
	Record Record
	Err    error
}

// Applied reports whether the record changed ledger state.
func (o Outcome) Applied() bool {
	return o.Err == nil
}

// Reason returns a stable code for the outcome: "applied" or the rejection reason.
func (o Outcome) Reason() string {
	return Reason(o.Err)
}

var reasons = []struct {
	err  error
	code string
}{
	{ErrDuplicateTransaction, "duplicate_transaction"},
	{ErrTransactionNotFound, "transaction_not_found"},
	{ErrClientMismatch, "client_mismatch"},
	{ErrInvalidDisputeTransition, "invalid_dispute_transition"},
	{ErrAccountLocked, "account_locked"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInvalidAmount, "invalid_amount"},
}

// Reason classifies a rejection error into a stable snake_case code.
func Reason(err error) string {
	if err == nil {
		return "applied"
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return "unknown"
}
