package postgres

import (
	"context"
	"fmt"

	"github.com/avelichko/kidlearn/internal/repository"
)

type Storage struct {
	db DBTX
}

func NewStorage(db DBTX) repository.Storage {
	return &Storage{db: db}
}

func (s *Storage) Children() repository.ChildRepo {
	return &ChildRepo{DB: s.db}
}

func (s *Storage) FailureStates() repository.FailureStateRepo {
	return &FailureStateRepo{DB: s.db}
}

func (s *Storage) RefreshTokens() repository.RefreshTokenRepo {
	return &RefreshTokenRepo{DB: s.db}
}

func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}

	defer func() {
		switch err {
		case nil:
			err = tx.Commit(ctx)
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	err = fn(NewStorage(tx))

	return err
}
