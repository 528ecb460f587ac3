// Package txguard runs named units of work inside a transaction and makes
// sure no transaction outlives the request that opened it.
package txguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/listing-search/internal/core/observability"
)

var (
	ErrTransactionFailure = errors.New("transaction failure")
	ErrAlreadyOpen        = errors.New("transaction already open")
)

type State int

const (
	Absent State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "absent"
}

type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Session tracks the transactions of one request. It is not safe for
// concurrent use; each request handler creates its own.
type Session[T Tx] struct {
	begin  func(ctx context.Context) (T, error)
	log    *slog.Logger
	states map[string]State
	txs    map[string]T
}

func NewSession[T Tx](begin func(ctx context.Context) (T, error), log *slog.Logger) *Session[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Session[T]{
		begin:  begin,
		log:    log,
		states: make(map[string]State),
		txs:    make(map[string]T),
	}
}

func (s *Session[T]) State(name string) State { return s.states[name] }

func (s *Session[T]) InTransaction(name string) bool { return s.states[name] == Open }

// Run opens the named transaction, runs body and commits when body returns
// nil. A body error rolls back and is returned unchanged. If body exits any
// other way (panic, runtime.Goexit) the transaction is rolled back before
// Run unwinds.
func (s *Session[T]) Run(ctx context.Context, name string, body func(ctx context.Context, tx T) error) (err error) {
	if s.states[name] == Open {
		return fmt.Errorf("%w: %s", ErrAlreadyOpen, name)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		observability.ObserveTx(name, "begin_error")
		return fmt.Errorf("%w: begin %s: %w", ErrTransactionFailure, name, err)
	}
	s.states[name] = Open
	s.txs[name] = tx
	defer s.ensureClosed(ctx, name)

	if err := body(ctx, tx); err != nil {
		s.log.ErrorContext(ctx, "transaction failed", "tx", name, "err", err)
		_ = s.Rollback(ctx, name)
		return err
	}

	if s.states[name] != Open {
		// body rolled back on its own
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		observability.ObserveTx(name, "commit_error")
		s.log.ErrorContext(ctx, "transaction commit failed", "tx", name, "err", err)
		_ = s.Rollback(ctx, name)
		return fmt.Errorf("%w: commit %s: %w", ErrTransactionFailure, name, err)
	}
	s.close(name)
	observability.ObserveTx(name, "commit")
	return nil
}

// Rollback closes the named transaction if it is open. Calling it on a
// closed or unknown name is a no-op.
func (s *Session[T]) Rollback(ctx context.Context, name string) error {
	if s.states[name] != Open {
		return nil
	}
	tx := s.txs[name]
	s.close(name)
	observability.ObserveTx(name, "rollback")
	if err := tx.Rollback(ctx); err != nil {
		s.log.ErrorContext(ctx, "transaction rollback failed", "tx", name, "err", err)
		return fmt.Errorf("%w: rollback %s: %w", ErrTransactionFailure, name, err)
	}
	return nil
}

func (s *Session[T]) close(name string) {
	s.states[name] = Closed
	delete(s.txs, name)
}

func (s *Session[T]) ensureClosed(ctx context.Context, name string) {
	if s.states[name] != Open {
		return
	}
	// request context may already be cancelled
	ctx = context.WithoutCancel(ctx)
	s.log.WarnContext(ctx, "transaction closed implicitly", "tx", name)
	observability.ObserveTx(name, "safety_net")
	_ = s.Rollback(ctx, name)
}
