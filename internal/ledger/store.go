package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DisputeState tracks where a stored transaction is in the dispute lifecycle.
type DisputeState uint8

const (
	StateNormal DisputeState = iota
	StateDisputed
	// StateChargedBack is terminal.
	StateChargedBack
)

func (s DisputeState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateDisputed:
		return "disputed"
	case StateChargedBack:
		return "charged_back"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// StoredTransaction is an accepted deposit or withdrawal.
type StoredTransaction struct {
	ID     TxID
	Client ClientID
	Kind   Kind
	Amount decimal.Decimal
	State  DisputeState
}

// Store is the append-only record of accepted deposits and withdrawals. It
// never touches account balances and is not safe for concurrent use.
type Store struct {
	txs map[TxID]*StoredTransaction
}

// NewStore creates an empty transaction store.
func NewStore() *Store {
	return &Store{txs: make(map[TxID]*StoredTransaction)}
}

// Record inserts tx under its identifier. An existing entry is never overwritten.
func (s *Store) Record(tx StoredTransaction) error {
	if _, exists := s.txs[tx.ID]; exists {
		return fmt.Errorf("tx %d: %w", tx.ID, ErrDuplicateTransaction)
	}
	if !tx.Kind.Funding() {
		return fmt.Errorf("tx %d: cannot store %s", tx.ID, tx.Kind)
	}
	tx.State = StateNormal
	s.txs[tx.ID] = &tx
	return nil
}

// Lookup returns a copy of the stored transaction.
func (s *Store) Lookup(id TxID) (StoredTransaction, error) {
	tx, ok := s.txs[id]
	if !ok {
		return StoredTransaction{}, fmt.Errorf("tx %d: %w", id, ErrTransactionNotFound)
	}
	return *tx, nil
}

// MarkDisputed moves a transaction from normal to disputed.
func (s *Store) MarkDisputed(id TxID) error {
	return s.transition(id, StateNormal, StateDisputed)
}

// MarkResolved moves a disputed transaction back to normal.
func (s *Store) MarkResolved(id TxID) error {
	return s.transition(id, StateDisputed, StateNormal)
}

// MarkChargedBack closes a disputed transaction for good.
func (s *Store) MarkChargedBack(id TxID) error {
	return s.transition(id, StateDisputed, StateChargedBack)
}

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	return len(s.txs)
}

func (s *Store) transition(id TxID, from, to DisputeState) error {
	tx, ok := s.txs[id]
	if !ok {
		return fmt.Errorf("tx %d: %w", id, ErrTransactionNotFound)
	}
	if tx.State != from {
		return fmt.Errorf("tx %d is %s, cannot become %s: %w", id, tx.State, to, ErrInvalidDisputeTransition)
	}
	tx.State = to
	return nil
}
