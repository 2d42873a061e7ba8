package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
)

// Store bundles the workflow stores over one database handle and provides the
// transaction boundary the transition executor needs.
type Store struct {
	*PipelineStore
	*EntityStateStore
	*StateLogStore

	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{
		PipelineStore:    NewPipelineStore(db),
		EntityStateStore: NewEntityStateStore(db),
		StateLogStore:    NewStateLogStore(db),
		db:               db,
	}
}

type txStore struct {
	*EntityStateStore
	*StateLogStore
}

func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repo.WorkflowTx) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if fn == nil {
		return fmt.Errorf("transaction func is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	scoped := txStore{
		EntityStateStore: NewEntityStateStore(tx),
		StateLogStore:    NewStateLogStore(tx),
	}
	if err := fn(ctx, scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ repo.WorkflowStore = (*Store)(nil)
