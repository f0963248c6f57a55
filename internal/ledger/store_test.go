package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStore_RecordRejectsDuplicate(t *testing.T) {
	s := NewStore()
	first := StoredTransaction{ID: 7, Client: 1, Kind: KindDeposit, Amount: decimal.NewFromInt(5)}
	if err := s.Record(first); err != nil {
		t.Fatalf("record: %v", err)
	}

	second := StoredTransaction{ID: 7, Client: 2, Kind: KindWithdrawal, Amount: decimal.NewFromInt(9)}
	if err := s.Record(second); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	got, err := s.Lookup(7)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Client != 1 || !got.Amount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("duplicate overwrote stored tx: %+v", got)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 stored tx, got %d", s.Len())
	}
}

func TestStore_RecordRejectsDisputeKinds(t *testing.T) {
	s := NewStore()
	if err := s.Record(StoredTransaction{ID: 1, Client: 1, Kind: KindDispute}); err == nil {
		t.Fatal("expected dispute kind to be refused")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}

func TestStore_LookupNotFound(t *testing.T) {
	s := NewStore()
	if _, err := s.Lookup(99); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		steps []func(*Store, TxID) error
		want  DisputeState
		fails int // index of the step expected to fail, -1 for none
	}{
		{
			name:  "dispute then resolve",
			steps: []func(*Store, TxID) error{(*Store).MarkDisputed, (*Store).MarkResolved},
			want:  StateNormal,
			fails: -1,
		},
		{
			name:  "dispute then chargeback",
			steps: []func(*Store, TxID) error{(*Store).MarkDisputed, (*Store).MarkChargedBack},
			want:  StateChargedBack,
			fails: -1,
		},
		{
			name:  "resolve without dispute",
			steps: []func(*Store, TxID) error{(*Store).MarkResolved},
			want:  StateNormal,
			fails: 0,
		},
		{
			name:  "double dispute",
			steps: []func(*Store, TxID) error{(*Store).MarkDisputed, (*Store).MarkDisputed},
			want:  StateDisputed,
			fails: 1,
		},
		{
			name:  "dispute after chargeback",
			steps: []func(*Store, TxID) error{(*Store).MarkDisputed, (*Store).MarkChargedBack, (*Store).MarkDisputed},
			want:  StateChargedBack,
			fails: 2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			if err := s.Record(StoredTransaction{ID: 1, Client: 1, Kind: KindDeposit, Amount: decimal.NewFromInt(1)}); err != nil {
				t.Fatalf("record: %v", err)
			}
			for i, step := range tc.steps {
				err := step(s, 1)
				if i == tc.fails {
					if !errors.Is(err, ErrInvalidDisputeTransition) {
						t.Fatalf("step %d: expected invalid transition, got %v", i, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("step %d: %v", i, err)
				}
			}
			got, _ := s.Lookup(1)
			if got.State != tc.want {
				t.Fatalf("expected state %s, got %s", tc.want, got.State)
			}
		})
	}
}

func TestStore_TransitionUnknownTx(t *testing.T) {
	s := NewStore()
	if err := s.MarkDisputed(3); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
