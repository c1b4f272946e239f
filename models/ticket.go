package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

func (v VerificationStatus) Valid() bool {
	switch v {
	case VerificationPending, VerificationApproved, VerificationRejected:
		return true
	}
	return false
}

type Ticket struct {
	ID                 string             `json:"id"`
	VendorID           string             `json:"vendor_id"`
	VendorName         string             `json:"vendor_name"`
	VendorEmail        string             `json:"vendor_email"`
	Title              string             `json:"title"`
	From               string             `json:"from"`
	To                 string             `json:"to"`
	TransportType      string             `json:"transport_type"`
	Price              decimal.Decimal    `json:"price"`
	TotalQuantity      int                `json:"total_quantity"`
	AvailableQuantity  int                `json:"available_quantity"`
	DepartureTime      time.Time          `json:"departure_time"`
	Perks              []string           `json:"perks"`
	Image              string             `json:"image"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	IsActive           bool               `json:"is_active"`
	IsAdvertised       bool               `json:"is_advertised"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Bookable reports whether the ticket accepts new bookings at now.
func (t *Ticket) Bookable(now time.Time) bool {
	return t.IsActive && t.VerificationStatus == VerificationApproved && t.DepartureTime.After(now)
}
