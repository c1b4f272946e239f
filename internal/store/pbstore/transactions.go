package pbstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
)

type transactions struct {
	app core.App
}

func recordToTransaction(r *core.Record) *models.Transaction {
	return &models.Transaction{
		ID:            r.Id,
		BookingID:     r.GetString("booking_id"),
		TicketID:      r.GetString("ticket_id"),
		UserID:        r.GetString("user_id"),
		TicketTitle:   r.GetString("ticket_title"),
		Amount:        decimal.NewFromFloat(r.GetFloat("amount")),
		Currency:      r.GetString("currency"),
		PaymentMethod: r.GetString("payment_method"),
		TransactionID: r.GetString("transaction_id"),
		Status:        models.TransactionStatus(r.GetString("status")),
		CreatedAt:     r.GetDateTime("created").Time(),
	}
}

func (r *transactions) Get(_ context.Context, id string) (*models.Transaction, error) {
	record, err := findByID(r.app, transactionsCollection, "transaction", id)
	if err != nil {
		return nil, err
	}
	return recordToTransaction(record), nil
}

func (r *transactions) GetByExternalID(_ context.Context, externalID string) (*models.Transaction, error) {
	record, err := r.app.FindFirstRecordByData(transactionsCollection, "transaction_id", externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("transaction", externalID)
		}
		return nil, fmt.Errorf("find transaction %s: %w", externalID, err)
	}
	return recordToTransaction(record), nil
}

func (r *transactions) ListByUser(_ context.Context, userID string, limit int) ([]*models.Transaction, error) {
	records, err := r.app.FindRecordsByFilter(transactionsCollection, "user_id = {:user}", "-created", limit, 0, dbx.Params{"user": userID})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]*models.Transaction, 0, len(records))
	for _, rec := range records {
		out = append(out, recordToTransaction(rec))
	}
	return out, nil
}

// Insert relies on the unique transaction_id index. A failed save is
// re-checked so a concurrent duplicate is reported as not inserted.
func (r *transactions) Insert(ctx context.Context, tx *models.Transaction) (bool, error) {
	if _, err := r.GetByExternalID(ctx, tx.TransactionID); err == nil {
		return false, nil
	}

	record, err := newRecord(r.app, transactionsCollection, tx.ID)
	if err != nil {
		return false, err
	}

	record.Set("booking_id", tx.BookingID)
	record.Set("ticket_id", tx.TicketID)
	record.Set("user_id", tx.UserID)
	record.Set("ticket_title", tx.TicketTitle)
	record.Set("amount", tx.Amount.InexactFloat64())
	record.Set("currency", tx.Currency)
	record.Set("payment_method", tx.PaymentMethod)
	record.Set("transaction_id", tx.TransactionID)
	record.Set("status", string(tx.Status))

	if err := r.app.Save(record); err != nil {
		if _, lookupErr := r.GetByExternalID(ctx, tx.TransactionID); lookupErr == nil {
			return false, nil
		}
		return false, fmt.Errorf("save transaction: %w", err)
	}

	*tx = *recordToTransaction(record)
	return true, nil
}
