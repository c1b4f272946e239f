package pbstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
)

type tickets struct {
	app core.App
}

func recordToTicket(r *core.Record) *models.Ticket {
	var perks []string
	_ = r.UnmarshalJSONField("perks", &perks)

	return &models.Ticket{
		ID:                 r.Id,
		VendorID:           r.GetString("vendor_id"),
		VendorName:         r.GetString("vendor_name"),
		VendorEmail:        r.GetString("vendor_email"),
		Title:              r.GetString("title"),
		From:               r.GetString("origin"),
		To:                 r.GetString("destination"),
		TransportType:      r.GetString("transport_type"),
		Price:              decimal.NewFromFloat(r.GetFloat("price")),
		TotalQuantity:      r.GetInt("total_quantity"),
		AvailableQuantity:  r.GetInt("available_quantity"),
		DepartureTime:      r.GetDateTime("departure_time").Time(),
		Perks:              perks,
		Image:              r.GetString("image"),
		VerificationStatus: models.VerificationStatus(r.GetString("verification_status")),
		IsActive:           r.GetBool("is_active"),
		IsAdvertised:       r.GetBool("is_advertised"),
		CreatedAt:          r.GetDateTime("created").Time(),
		UpdatedAt:          r.GetDateTime("updated").Time(),
	}
}

func (r *tickets) Get(_ context.Context, id string) (*models.Ticket, error) {
	record, err := findByID(r.app, ticketsCollection, "ticket", id)
	if err != nil {
		return nil, err
	}
	return recordToTicket(record), nil
}

func (r *tickets) Create(_ context.Context, t *models.Ticket) error {
	record, err := newRecord(r.app, ticketsCollection, t.ID)
	if err != nil {
		return err
	}

	record.Set("vendor_id", t.VendorID)
	record.Set("vendor_name", t.VendorName)
	record.Set("vendor_email", t.VendorEmail)
	record.Set("title", t.Title)
	record.Set("origin", t.From)
	record.Set("destination", t.To)
	record.Set("transport_type", t.TransportType)
	record.Set("price", t.Price.InexactFloat64())
	record.Set("total_quantity", t.TotalQuantity)
	record.Set("available_quantity", t.AvailableQuantity)
	record.Set("departure_time", t.DepartureTime.UTC())
	record.Set("perks", t.Perks)
	record.Set("image", t.Image)
	record.Set("verification_status", string(t.VerificationStatus))
	record.Set("is_active", t.IsActive)
	record.Set("is_advertised", t.IsAdvertised)

	if err := r.app.Save(record); err != nil {
		return fmt.Errorf("save ticket: %w", err)
	}

	*t = *recordToTicket(record)
	return nil
}

func (r *tickets) ListByVendor(_ context.Context, vendorID string) ([]*models.Ticket, error) {
	records, err := r.app.FindRecordsByFilter(ticketsCollection, "vendor_id = {:vendor}", "-created", 0, 0, dbx.Params{"vendor": vendorID})
	if err != nil {
		return nil, fmt.Errorf("list vendor tickets: %w", err)
	}

	out := make([]*models.Ticket, 0, len(records))
	for _, rec := range records {
		out = append(out, recordToTicket(rec))
	}
	return out, nil
}

func (r *tickets) ListApproved(_ context.Context, advertisedOnly bool, limit int) ([]*models.Ticket, error) {
	filter := "is_active = true && verification_status = 'approved'"
	if advertisedOnly {
		filter += " && is_advertised = true"
	}
	if limit < 0 {
		limit = 0
	}

	records, err := r.app.FindRecordsByFilter(ticketsCollection, filter, "-created", limit, 0)
	if err != nil {
		return nil, fmt.Errorf("list approved tickets: %w", err)
	}

	out := make([]*models.Ticket, 0, len(records))
	for _, rec := range records {
		out = append(out, recordToTicket(rec))
	}
	return out, nil
}

func (r *tickets) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.app.DB().Select("id").From(ticketsCollection).OrderBy("id").WithContext(ctx).Column(&ids)
	if err != nil {
		return nil, fmt.Errorf("list ticket ids: %w", err)
	}
	return ids, nil
}

// update writes only the given columns so it never races the guarded
// quantity counters.
func (r *tickets) update(ctx context.Context, id string, cols dbx.Params) error {
	cols["updated"] = nowString()
	res, err := r.app.DB().Update(ticketsCollection, cols, dbx.HashExp{"id": id}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", id, err)
	}
	if n == 0 {
		return store.NotFound("ticket", id)
	}
	return nil
}

func (r *tickets) set(ctx context.Context, id, field string, value any) error {
	return r.update(ctx, id, dbx.Params{field: value})
}

func (r *tickets) Update(ctx context.Context, t *models.Ticket) error {
	perks, err := json.Marshal(t.Perks)
	if err != nil {
		return fmt.Errorf("encode perks: %w", err)
	}
	departure, err := types.ParseDateTime(t.DepartureTime.UTC())
	if err != nil {
		return fmt.Errorf("encode departure time: %w", err)
	}

	return r.update(ctx, t.ID, dbx.Params{
		"title":          t.Title,
		"origin":         t.From,
		"destination":    t.To,
		"transport_type": t.TransportType,
		"price":          t.Price.InexactFloat64(),
		"departure_time": departure.String(),
		"perks":          string(perks),
		"image":          t.Image,
	})
}

func (r *tickets) SetVerification(ctx context.Context, id string, v models.VerificationStatus) error {
	return r.set(ctx, id, "verification_status", string(v))
}

func (r *tickets) SetActive(ctx context.Context, id string, active bool) error {
	return r.set(ctx, id, "is_active", active)
}

func (r *tickets) SetAdvertised(ctx context.Context, id string, advertised bool) error {
	return r.set(ctx, id, "is_advertised", advertised)
}

func (r *tickets) SetAvailable(ctx context.Context, id string, available int) error {
	return r.set(ctx, id, "available_quantity", available)
}

func (r *tickets) DeactivateByVendor(ctx context.Context, vendorID string) (int, error) {
	res, err := r.app.DB().NewQuery(
		"UPDATE tickets SET is_active = FALSE, updated = {:updated} WHERE vendor_id = {:vendor} AND is_active = TRUE",
	).Bind(dbx.Params{"vendor": vendorID, "updated": nowString()}).WithContext(ctx).Execute()
	if err != nil {
		return 0, fmt.Errorf("deactivate vendor tickets: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *tickets) CountAdvertised(_ context.Context, excludeID string) (int, error) {
	n, err := r.app.CountRecords(ticketsCollection,
		dbx.HashExp{"is_advertised": true},
		dbx.Not(dbx.HashExp{"id": excludeID}),
	)
	if err != nil {
		return 0, fmt.Errorf("count advertised tickets: %w", err)
	}
	return int(n), nil
}

func (r *tickets) Decrement(ctx context.Context, id string, qty int) (bool, error) {
	ok, err := exec(ctx, r.app,
		`UPDATE tickets
		SET available_quantity = available_quantity - {:qty}, updated = {:updated}
		WHERE id = {:id}
			AND is_active = TRUE
			AND verification_status = 'approved'
			AND available_quantity >= {:qty}`,
		dbx.Params{"id": id, "qty": qty, "updated": nowString()},
	)
	if err != nil {
		return false, fmt.Errorf("decrement ticket %s: %w", id, err)
	}
	return ok, nil
}

func (r *tickets) Increment(ctx context.Context, id string, qty int) (bool, error) {
	ok, err := exec(ctx, r.app,
		`UPDATE tickets
		SET available_quantity = available_quantity + {:qty}, updated = {:updated}
		WHERE id = {:id} AND available_quantity + {:qty} <= total_quantity`,
		dbx.Params{"id": id, "qty": qty, "updated": nowString()},
	)
	if err != nil {
		return false, fmt.Errorf("increment ticket %s: %w", id, err)
	}
	return ok, nil
}

func (r *tickets) AdjustTotal(ctx context.Context, id string, delta int) (bool, error) {
	ok, err := exec(ctx, r.app,
		`UPDATE tickets
		SET total_quantity = total_quantity + {:delta},
			available_quantity = available_quantity + {:delta},
			updated = {:updated}
		WHERE id = {:id} AND available_quantity + {:delta} >= 0`,
		dbx.Params{"id": id, "delta": delta, "updated": nowString()},
	)
	if err != nil {
		return false, fmt.Errorf("adjust ticket %s total: %w", id, err)
	}
	return ok, nil
}
