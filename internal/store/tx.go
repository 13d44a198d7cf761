package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// UnitOfWork exposes the stores bound to one open transaction.
type UnitOfWork struct {
	Products *ProductStore
	Sales    *SaleLedger
	Users    *UserStore
}

type Transactor struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

// NewTransactor uses the driver's default isolation level.
func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx runs fn in a transaction. A nil return commits; an error or a
// panic rolls back everything fn wrote.
func (t *Transactor) WithinTx(ctx context.Context, fn func(UnitOfWork) error) error {
	tx, err := t.db.BeginTxx(ctx, t.opts)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	uow := UnitOfWork{
		Products: NewProductStore(tx),
		Sales:    NewSaleLedger(tx),
		Users:    NewUserStore(tx),
	}
	if err := fn(uow); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}
