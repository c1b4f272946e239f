package pbstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"ticket-marketplace/models"
)

type bookings struct {
	app core.App
}

func recordToBooking(r *core.Record) *models.Booking {
	b := &models.Booking{
		ID:            r.Id,
		TicketID:      r.GetString("ticket_id"),
		UserID:        r.GetString("user_id"),
		VendorID:      r.GetString("vendor_id"),
		UserName:      r.GetString("user_name"),
		UserEmail:     r.GetString("user_email"),
		TicketTitle:   r.GetString("ticket_title"),
		TicketPrice:   decimal.NewFromFloat(r.GetFloat("ticket_price")),
		TransportType: r.GetString("transport_type"),
		From:          r.GetString("origin"),
		To:            r.GetString("destination"),
		Quantity:      r.GetInt("quantity"),
		TotalPrice:    decimal.NewFromFloat(r.GetFloat("total_price")),
		Status:        models.BookingStatus(r.GetString("status")),
		PaymentStatus: models.PaymentStatus(r.GetString("payment_status")),
		PaymentID:     r.GetString("payment_id"),
		DepartureTime: r.GetDateTime("departure_time").Time(),
		CreatedAt:     r.GetDateTime("created").Time(),
		UpdatedAt:     r.GetDateTime("updated").Time(),
	}
	if d := r.GetDateTime("payment_date"); !d.IsZero() {
		t := d.Time()
		b.PaymentDate = &t
	}
	return b
}

func (r *bookings) Get(_ context.Context, id string) (*models.Booking, error) {
	record, err := findByID(r.app, bookingsCollection, "booking", id)
	if err != nil {
		return nil, err
	}
	return recordToBooking(record), nil
}

func (r *bookings) Create(_ context.Context, b *models.Booking) error {
	record, err := newRecord(r.app, bookingsCollection, b.ID)
	if err != nil {
		return err
	}

	record.Set("ticket_id", b.TicketID)
	record.Set("user_id", b.UserID)
	record.Set("vendor_id", b.VendorID)
	record.Set("user_name", b.UserName)
	record.Set("user_email", b.UserEmail)
	record.Set("ticket_title", b.TicketTitle)
	record.Set("ticket_price", b.TicketPrice.InexactFloat64())
	record.Set("transport_type", b.TransportType)
	record.Set("origin", b.From)
	record.Set("destination", b.To)
	record.Set("quantity", b.Quantity)
	record.Set("total_price", b.TotalPrice.InexactFloat64())
	record.Set("status", string(b.Status))
	record.Set("payment_status", string(b.PaymentStatus))
	record.Set("payment_id", b.PaymentID)
	record.Set("departure_time", b.DepartureTime.UTC())
	if b.PaymentDate != nil {
		record.Set("payment_date", b.PaymentDate.UTC())
	}

	if err := r.app.Save(record); err != nil {
		return fmt.Errorf("save booking: %w", err)
	}

	*b = *recordToBooking(record)
	return nil
}

func (r *bookings) find(filter string, params dbx.Params) ([]*models.Booking, error) {
	records, err := r.app.FindRecordsByFilter(bookingsCollection, filter, "-created", 0, 0, params)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	out := make([]*models.Booking, 0, len(records))
	for _, rec := range records {
		out = append(out, recordToBooking(rec))
	}
	return out, nil
}

func (r *bookings) ListByUser(_ context.Context, userID string) ([]*models.Booking, error) {
	return r.find("user_id = {:user}", dbx.Params{"user": userID})
}

func (r *bookings) ListByVendor(_ context.Context, vendorID string, status models.BookingStatus) ([]*models.Booking, error) {
	if status == "" {
		return r.find("vendor_id = {:vendor}", dbx.Params{"vendor": vendorID})
	}
	return r.find("vendor_id = {:vendor} && status = {:status}", dbx.Params{"vendor": vendorID, "status": string(status)})
}

func (r *bookings) CompareAndSetStatus(ctx context.Context, id string, from, to models.BookingStatus) (bool, error) {
	ok, err := exec(ctx, r.app,
		"UPDATE bookings SET status = {:to}, updated = {:updated} WHERE id = {:id} AND status = {:from}",
		dbx.Params{"id": id, "from": string(from), "to": string(to), "updated": nowString()},
	)
	if err != nil {
		return false, fmt.Errorf("update booking %s status: %w", id, err)
	}
	return ok, nil
}

func (r *bookings) Settle(ctx context.Context, id, paymentID string, at time.Time) (bool, error) {
	paidAt, err := types.ParseDateTime(at.UTC())
	if err != nil {
		return false, err
	}

	ok, err := exec(ctx, r.app,
		`UPDATE bookings
		SET status = 'paid', payment_status = 'paid', payment_id = {:payment}, payment_date = {:at}, updated = {:updated}
		WHERE id = {:id} AND status = 'accepted'`,
		dbx.Params{"id": id, "payment": paymentID, "at": paidAt.String(), "updated": nowString()},
	)
	if err != nil {
		return false, fmt.Errorf("settle booking %s: %w", id, err)
	}
	return ok, nil
}

func (r *bookings) DeleteIfStatus(ctx context.Context, id string, status models.BookingStatus) (bool, error) {
	ok, err := exec(ctx, r.app,
		"DELETE FROM bookings WHERE id = {:id} AND status = {:status}",
		dbx.Params{"id": id, "status": string(status)},
	)
	if err != nil {
		return false, fmt.Errorf("delete booking %s: %w", id, err)
	}
	return ok, nil
}

func (r *bookings) SumActiveQuantity(ctx context.Context, ticketID string) (int, error) {
	var total int
	err := r.app.DB().NewQuery(
		"SELECT COALESCE(SUM(quantity), 0) FROM bookings WHERE ticket_id = {:ticket} AND status IN ('pending', 'accepted', 'paid')",
	).Bind(dbx.Params{"ticket": ticketID}).WithContext(ctx).Row(&total)
	if err != nil {
		return 0, fmt.Errorf("sum booked quantity: %w", err)
	}
	return total, nil
}
