// Package pbstore persists the marketplace in the PocketBase SQLite
// database. Guarded counters are updated with single conditional UPDATE
// statements and multi-step writes run inside RunInTransaction.
package pbstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"ticket-marketplace/internal/store"
)

const (
	ticketsCollection      = "tickets"
	bookingsCollection     = "bookings"
	transactionsCollection = "transactions"
	accountsCollection     = "accounts"
)

type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) Tickets() store.TicketRepository           { return &tickets{s.app} }
func (s *Store) Bookings() store.BookingRepository         { return &bookings{s.app} }
func (s *Store) Transactions() store.TransactionRepository { return &transactions{s.app} }
func (s *Store) Accounts() store.AccountRepository         { return &accounts{s.app} }

// WithTx runs fn against a Store bound to a single SQLite transaction.
// Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(ctx, &Store{app: txApp})
	})
}

// Close is a no-op; the PocketBase app owns the database handle.
func (s *Store) Close(context.Context) error { return nil }

func findByID(app core.App, collection, entity, id string) (*core.Record, error) {
	record, err := app.FindRecordById(collection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound(entity, id)
		}
		return nil, fmt.Errorf("find %s %s: %w", entity, id, err)
	}
	return record, nil
}

func newRecord(app core.App, collection, id string) (*core.Record, error) {
	c, err := app.FindCachedCollectionByNameOrId(collection)
	if err != nil {
		return nil, fmt.Errorf("find collection %s: %w", collection, err)
	}
	record := core.NewRecord(c)
	if id != "" {
		record.Id = id
	}
	return record, nil
}

// exec runs a conditional statement and reports whether it matched a row.
func exec(ctx context.Context, app core.App, query string, params dbx.Params) (bool, error) {
	res, err := app.DB().NewQuery(query).Bind(params).WithContext(ctx).Execute()
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nowString() string {
	return types.NowDateTime().String()
}
