package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
	TransactionPending TransactionStatus = "pending"
)

// Transaction is an append-only settlement record. TransactionID is the
// payment provider's id and is unique across the collection.
type Transaction struct {
	ID            string            `json:"id"`
	BookingID     string            `json:"booking_id"`
	TicketID      string            `json:"ticket_id"`
	UserID        string            `json:"user_id"`
	TicketTitle   string            `json:"ticket_title"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method"`
	TransactionID string            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}
