// Package memstore is an in-process store driver. It backs local
// development and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
)

type dataset struct {
	tickets      map[string]*models.Ticket
	bookings     map[string]*models.Booking
	transactions map[string]*models.Transaction
	accounts     map[string]*models.Account
}

func newDataset() *dataset {
	return &dataset{
		tickets:      make(map[string]*models.Ticket),
		bookings:     make(map[string]*models.Booking),
		transactions: make(map[string]*models.Transaction),
		accounts:     make(map[string]*models.Account),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.tickets {
		c.tickets[k] = copyTicket(v)
	}
	for k, v := range d.bookings {
		c.bookings[k] = copyBooking(v)
	}
	for k, v := range d.transactions {
		t := *v
		c.transactions[k] = &t
	}
	for k, v := range d.accounts {
		a := *v
		c.accounts[k] = &a
	}
	return c
}

func copyTicket(t *models.Ticket) *models.Ticket {
	c := *t
	c.Perks = append([]string(nil), t.Perks...)
	return &c
}

func copyBooking(b *models.Booking) *models.Booking {
	c := *b
	if b.PaymentDate != nil {
		d := *b.PaymentDate
		c.PaymentDate = &d
	}
	return &c
}

// Store keeps every collection in maps guarded by one mutex.
type Store struct {
	mu   sync.Mutex
	data *dataset
}

func New() *Store {
	return &Store{data: newDataset()}
}

// view is the repository receiver. Inside WithTx the mutex is already held.
type view struct {
	s    *Store
	inTx bool
}

func (v *view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (s *Store) Tickets() store.TicketRepository {
	return &tickets{&view{s: s}}
}

func (s *Store) Bookings() store.BookingRepository {
	return &bookings{&view{s: s}}
}

func (s *Store) Transactions() store.TransactionRepository {
	return &transactions{&view{s: s}}
}

func (s *Store) Accounts() store.AccountRepository {
	return &accounts{&view{s: s}}
}

// WithTx serializes fn with every other operation on the store and
// restores the previous state when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(ctx, &txStore{v: &view{s: s, inTx: true}}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) Close(context.Context) error { return nil }

type txStore struct {
	v *view
}

func (t *txStore) Tickets() store.TicketRepository           { return &tickets{t.v} }
func (t *txStore) Bookings() store.BookingRepository         { return &bookings{t.v} }
func (t *txStore) Transactions() store.TransactionRepository { return &transactions{t.v} }
func (t *txStore) Accounts() store.AccountRepository         { return &accounts{t.v} }

func (t *txStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return fn(ctx, t)
}

func (t *txStore) Close(context.Context) error { return nil }

func now() time.Time { return time.Now().UTC() }

// tickets

type tickets struct{ *view }

func (r *tickets) Get(_ context.Context, id string) (*models.Ticket, error) {
	defer r.lock()()
	t, ok := r.s.data.tickets[id]
	if !ok {
		return nil, store.NotFound("ticket", id)
	}
	return copyTicket(t), nil
}

func (r *tickets) Create(_ context.Context, t *models.Ticket) error {
	defer r.lock()()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	t.UpdatedAt = t.CreatedAt
	r.s.data.tickets[t.ID] = copyTicket(t)
	return nil
}

func (r *tickets) ListByVendor(_ context.Context, vendorID string) ([]*models.Ticket, error) {
	defer r.lock()()
	var out []*models.Ticket
	for _, t := range r.s.data.tickets {
		if t.VendorID == vendorID {
			out = append(out, copyTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *tickets) ListApproved(_ context.Context, advertisedOnly bool, limit int) ([]*models.Ticket, error) {
	defer r.lock()()
	var out []*models.Ticket
	for _, t := range r.s.data.tickets {
		if !t.IsActive || t.VerificationStatus != models.VerificationApproved {
			continue
		}
		if advertisedOnly && !t.IsAdvertised {
			continue
		}
		out = append(out, copyTicket(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *tickets) IDs(context.Context) ([]string, error) {
	defer r.lock()()
	ids := make([]string, 0, len(r.s.data.tickets))
	for id := range r.s.data.tickets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *tickets) update(id string, fn func(t *models.Ticket)) error {
	defer r.lock()()
	t, ok := r.s.data.tickets[id]
	if !ok {
		return store.NotFound("ticket", id)
	}
	fn(t)
	t.UpdatedAt = now()
	return nil
}

func (r *tickets) Update(_ context.Context, in *models.Ticket) error {
	perks := append([]string(nil), in.Perks...)
	return r.update(in.ID, func(t *models.Ticket) {
		t.Title = in.Title
		t.From = in.From
		t.To = in.To
		t.TransportType = in.TransportType
		t.Price = in.Price
		t.DepartureTime = in.DepartureTime
		t.Perks = perks
		t.Image = in.Image
	})
}

func (r *tickets) SetVerification(_ context.Context, id string, v models.VerificationStatus) error {
	return r.update(id, func(t *models.Ticket) { t.VerificationStatus = v })
}

func (r *tickets) SetActive(_ context.Context, id string, active bool) error {
	return r.update(id, func(t *models.Ticket) { t.IsActive = active })
}

func (r *tickets) SetAdvertised(_ context.Context, id string, advertised bool) error {
	return r.update(id, func(t *models.Ticket) { t.IsAdvertised = advertised })
}

func (r *tickets) SetAvailable(_ context.Context, id string, available int) error {
	return r.update(id, func(t *models.Ticket) { t.AvailableQuantity = available })
}

func (r *tickets) DeactivateByVendor(_ context.Context, vendorID string) (int, error) {
	defer r.lock()()
	n := 0
	for _, t := range r.s.data.tickets {
		if t.VendorID == vendorID && t.IsActive {
			t.IsActive = false
			t.UpdatedAt = now()
			n++
		}
	}
	return n, nil
}

func (r *tickets) CountAdvertised(_ context.Context, excludeID string) (int, error) {
	defer r.lock()()
	n := 0
	for _, t := range r.s.data.tickets {
		if t.IsAdvertised && t.ID != excludeID {
			n++
		}
	}
	return n, nil
}

func (r *tickets) Decrement(_ context.Context, id string, qty int) (bool, error) {
	defer r.lock()()
	t, ok := r.s.data.tickets[id]
	if !ok || !t.IsActive || t.VerificationStatus != models.VerificationApproved || t.AvailableQuantity < qty {
		return false, nil
	}
	t.AvailableQuantity -= qty
	t.UpdatedAt = now()
	return true, nil
}

func (r *tickets) Increment(_ context.Context, id string, qty int) (bool, error) {
	defer r.lock()()
	t, ok := r.s.data.tickets[id]
	if !ok || t.AvailableQuantity+qty > t.TotalQuantity {
		return false, nil
	}
	t.AvailableQuantity += qty
	t.UpdatedAt = now()
	return true, nil
}

func (r *tickets) AdjustTotal(_ context.Context, id string, delta int) (bool, error) {
	defer r.lock()()
	t, ok := r.s.data.tickets[id]
	if !ok || t.AvailableQuantity+delta < 0 {
		return false, nil
	}
	t.TotalQuantity += delta
	t.AvailableQuantity += delta
	t.UpdatedAt = now()
	return true, nil
}

// bookings

type bookings struct{ *view }

func (r *bookings) Get(_ context.Context, id string) (*models.Booking, error) {
	defer r.lock()()
	b, ok := r.s.data.bookings[id]
	if !ok {
		return nil, store.NotFound("booking", id)
	}
	return copyBooking(b), nil
}

func (r *bookings) Create(_ context.Context, b *models.Booking) error {
	defer r.lock()()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now()
	}
	b.UpdatedAt = b.CreatedAt
	r.s.data.bookings[b.ID] = copyBooking(b)
	return nil
}

func (r *bookings) list(match func(b *models.Booking) bool) []*models.Booking {
	defer r.lock()()
	var out []*models.Booking
	for _, b := range r.s.data.bookings {
		if match(b) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *bookings) ListByUser(_ context.Context, userID string) ([]*models.Booking, error) {
	return r.list(func(b *models.Booking) bool { return b.UserID == userID }), nil
}

func (r *bookings) ListByVendor(_ context.Context, vendorID string, st models.BookingStatus) ([]*models.Booking, error) {
	return r.list(func(b *models.Booking) bool {
		return b.VendorID == vendorID && (st == "" || b.Status == st)
	}), nil
}

func (r *bookings) CompareAndSetStatus(_ context.Context, id string, from, to models.BookingStatus) (bool, error) {
	defer r.lock()()
	b, ok := r.s.data.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = now()
	return true, nil
}

func (r *bookings) Settle(_ context.Context, id, paymentID string, at time.Time) (bool, error) {
	defer r.lock()()
	b, ok := r.s.data.bookings[id]
	if !ok || b.Status != models.BookingAccepted {
		return false, nil
	}
	at = at.UTC()
	b.Status = models.BookingPaid
	b.PaymentStatus = models.PaymentPaid
	b.PaymentID = paymentID
	b.PaymentDate = &at
	b.UpdatedAt = now()
	return true, nil
}

func (r *bookings) DeleteIfStatus(_ context.Context, id string, st models.BookingStatus) (bool, error) {
	defer r.lock()()
	b, ok := r.s.data.bookings[id]
	if !ok || b.Status != st {
		return false, nil
	}
	delete(r.s.data.bookings, id)
	return true, nil
}

func (r *bookings) SumActiveQuantity(_ context.Context, ticketID string) (int, error) {
	defer r.lock()()
	sum := 0
	for _, b := range r.s.data.bookings {
		if b.TicketID == ticketID && b.Status.HoldsInventory() {
			sum += b.Quantity
		}
	}
	return sum, nil
}

// transactions

type transactions struct{ *view }

func (r *transactions) Get(_ context.Context, id string) (*models.Transaction, error) {
	defer r.lock()()
	t, ok := r.s.data.transactions[id]
	if !ok {
		return nil, store.NotFound("transaction", id)
	}
	c := *t
	return &c, nil
}

func (r *transactions) GetByExternalID(_ context.Context, externalID string) (*models.Transaction, error) {
	defer r.lock()()
	for _, t := range r.s.data.transactions {
		if t.TransactionID == externalID {
			c := *t
			return &c, nil
		}
	}
	return nil, store.NotFound("transaction", externalID)
}

func (r *transactions) ListByUser(_ context.Context, userID string, limit int) ([]*models.Transaction, error) {
	defer r.lock()()
	var out []*models.Transaction
	for _, t := range r.s.data.transactions {
		if t.UserID == userID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *transactions) Insert(_ context.Context, tx *models.Transaction) (bool, error) {
	defer r.lock()()
	if tx.TransactionID == "" {
		return false, status.New(status.KindValidation, "transaction id is required")
	}
	for _, t := range r.s.data.transactions {
		if t.TransactionID == tx.TransactionID {
			return false, nil
		}
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now()
	}
	c := *tx
	r.s.data.transactions[tx.ID] = &c
	return true, nil
}

// accounts

type accounts struct{ *view }

func (r *accounts) Get(_ context.Context, id string) (*models.Account, error) {
	defer r.lock()()
	a, ok := r.s.data.accounts[id]
	if !ok {
		return nil, store.NotFound("account", id)
	}
	c := *a
	return &c, nil
}

func (r *accounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	defer r.lock()()
	for _, a := range r.s.data.accounts {
		if a.Email == email {
			c := *a
			return &c, nil
		}
	}
	return nil, store.NotFound("account", email)
}

func (r *accounts) Create(_ context.Context, a *models.Account) error {
	defer r.lock()()
	for _, existing := range r.s.data.accounts {
		if existing.Email == a.Email {
			return status.Newf(status.KindValidation, "account %s already exists", a.Email)
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now()
	}
	c := *a
	r.s.data.accounts[a.ID] = &c
	return nil
}

func (r *accounts) SetRole(_ context.Context, id string, role models.Role) error {
	defer r.lock()()
	a, ok := r.s.data.accounts[id]
	if !ok {
		return store.NotFound("account", id)
	}
	a.Role = role
	return nil
}

func (r *accounts) SetFraud(_ context.Context, id string, fraud bool) error {
	defer r.lock()()
	a, ok := r.s.data.accounts[id]
	if !ok {
		return store.NotFound("account", id)
	}
	a.IsFraud = fraud
	return nil
}
