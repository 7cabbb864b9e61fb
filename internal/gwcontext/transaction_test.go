package gwcontext

import (
	"context"
	"testing"
	"time"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwerror"
)

func assertCode(t *testing.T, err error, want gwerror.Code) {
	t.Helper()
	gwErr, ok := err.(*gwerror.Error)
	if !ok {
		t.Fatalf("expected *gwerror.Error, got %T (%v)", err, err)
	}
	if gwErr.Code != want {
		t.Fatalf("got code %d (%s), want %d (%s)", gwErr.Code, gwErr.Code.Name(), want, want.Name())
	}
}

func TestConflictMessageVariesByState(t *testing.T) {
	cases := []struct {
		state txnState
		want  string
	}{
		{txnStarted, "Transaction 7 is already started."},
		{txnCommitted, "Transaction 7 is already committed."},
		{txnAborted, "Transaction 7 is already aborted."},
	}
	for _, c := range cases {
		got := conflictMessage(lastSeen{transactionNumber: 7, state: c.state})
		if got != c.want {
			t.Errorf("state %v: got %q, want %q", c.state, got, c.want)
		}
	}
}

func TestTransactionStoreCreateRejectsUnknownSession(t *testing.T) {
	s := NewTransactionStore(context.Background(), time.Hour)
	defer s.Close()

	_, err := s.Create(context.Background(), nil, backend.Catalog{}, "no-such-session", TransactionRequest{
		TransactionNumber: 1,
		StartTransaction:  false,
	})
	assertCode(t, err, gwerror.CodeNoSuchTransaction)
}

func TestTransactionStoreCreateRejectsConflictingStart(t *testing.T) {
	s := NewTransactionStore(context.Background(), time.Hour)
	defer s.Close()

	s.lastSeen["sess"] = lastSeen{transactionNumber: 5, state: txnStarted}

	_, err := s.Create(context.Background(), nil, backend.Catalog{}, "sess", TransactionRequest{
		TransactionNumber: 5,
		StartTransaction:  true,
		AutoCommit:        false,
	})
	assertCode(t, err, gwerror.CodeConflictingOperationInProgress)
}

func TestTransactionStoreCreateRejectsAlreadyCommitted(t *testing.T) {
	s := NewTransactionStore(context.Background(), time.Hour)
	defer s.Close()

	s.lastSeen["sess"] = lastSeen{transactionNumber: 5, state: txnCommitted}

	_, err := s.Create(context.Background(), nil, backend.Catalog{}, "sess", TransactionRequest{
		TransactionNumber: 5,
		StartTransaction:  false,
	})
	assertCode(t, err, gwerror.CodeTransactionCommitted)
}

func TestTransactionStoreCreateRejectsTooOldTransaction(t *testing.T) {
	s := NewTransactionStore(context.Background(), time.Hour)
	defer s.Close()

	s.lastSeen["sess"] = lastSeen{transactionNumber: 5, state: txnStarted}

	_, err := s.Create(context.Background(), nil, backend.Catalog{}, "sess", TransactionRequest{
		TransactionNumber: 3,
		StartTransaction:  true,
		AutoCommit:        false,
	})
	assertCode(t, err, gwerror.CodeTransactionTooOld)
}
