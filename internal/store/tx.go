package store

import (
	"context"
	"database/sql"
	"fmt"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txKey carries an open transaction of one Store in a context.
type txKey struct{ s *Store }

type txState struct {
	tx    *sql.Tx
	hooks []func(ctx context.Context)
}

func (s *Store) txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{s}).(*txState)
	return st
}

// conn returns the transaction carried by ctx, or the database.
func (s *Store) conn(ctx context.Context) querier {
	if st := s.txFrom(ctx); st != nil {
		return st.tx
	}
	return s.db
}

// RunAtomically runs fn in a transaction.
//
// Nested calls join the outer transaction. fn's error rolls the transaction
// back and is returned unchanged. Commit hooks registered with DeferCommit
// run after a successful commit, with the caller's ctx.
func (s *Store) RunAtomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	st := &txState{tx: tx}
	if err := fn(context.WithValue(ctx, txKey{s}, st)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, hook := range st.hooks {
		hook(ctx)
	}
	return nil
}

// HasOpenTransaction reports whether ctx carries a transaction of s.
func (s *Store) HasOpenTransaction(ctx context.Context) bool {
	return s.txFrom(ctx) != nil
}

// DeferCommit runs fn after the transaction in ctx commits, or right away
// when there is none. Hooks of a rolled back transaction never run.
func (s *Store) DeferCommit(ctx context.Context, fn func(ctx context.Context)) {
	st := s.txFrom(ctx)
	if st == nil {
		fn(ctx)
		return
	}
	st.hooks = append(st.hooks, fn)
}
