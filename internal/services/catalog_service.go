package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
)

const (
	// MaxAdvertised caps how many tickets are featured at once.
	MaxAdvertised = 6
	// LatestLimit is the size of the public latest tickets list.
	LatestLimit = 8
)

// Profile is what the identity provider vouches for.
type Profile struct {
	Email     string
	SubjectID string
	Name      string
	PhotoURL  string
}

type TicketInput struct {
	Title         string          `json:"title"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	TransportType string          `json:"transport_type"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	DepartureTime time.Time       `json:"departure_time"`
	Perks         []string        `json:"perks"`
	Image         string          `json:"image"`
}

// TicketUpdate is a partial edit of a ticket. Nil fields are left as they
// are.
type TicketUpdate struct {
	Title         *string          `json:"title"`
	From          *string          `json:"from"`
	To            *string          `json:"to"`
	TransportType *string          `json:"transport_type"`
	Price         *decimal.Decimal `json:"price"`
	Quantity      *int             `json:"quantity"`
	DepartureTime *time.Time       `json:"departure_time"`
	Perks         *[]string        `json:"perks"`
	Image         *string          `json:"image"`
}

// CatalogService covers accounts, vendor tickets and admin moderation.
type CatalogService struct {
	Store store.Store
	Now   Clock
}

func NewCatalogService(s store.Store, now Clock) *CatalogService {
	if now == nil {
		now = SystemClock
	}
	return &CatalogService{Store: s, Now: now}
}

// Provision returns the account for a verified identity, creating a
// regular user account on first sight.
func (s *CatalogService) Provision(ctx context.Context, p Profile) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return nil, status.New(status.KindInvalidCredential, "credential carries no email")
	}

	account, err := s.Store.Accounts().GetByEmail(ctx, email)
	if errors.Is(err, status.ErrNotFound) {
		account = &models.Account{
			Name:      p.Name,
			Email:     email,
			PhotoURL:  p.PhotoURL,
			Role:      models.RoleUser,
			IsActive:  true,
			SubjectID: p.SubjectID,
		}
		err = s.Store.Accounts().Create(ctx, account)
		if errors.Is(err, status.ErrValidation) {
			// created concurrently by another request
			account, err = s.Store.Accounts().GetByEmail(ctx, email)
		} else if err == nil {
			slog.Info("Account provisioned", "account_id", account.ID, "email", email)
		}
	}
	if err != nil {
		return nil, err
	}

	if !account.IsActive {
		return nil, status.Newf(status.KindForbidden, "account %s is deactivated", account.ID)
	}
	return account, nil
}

func (s *CatalogService) SetRole(ctx context.Context, accountID string, role models.Role) (*models.Account, error) {
	if !role.Valid() {
		return nil, status.Newf(status.KindValidation, "unknown role %q", role)
	}
	if err := s.Store.Accounts().SetRole(ctx, accountID, role); err != nil {
		return nil, err
	}
	slog.Info("Account role changed", "account_id", accountID, "role", role)
	return s.Store.Accounts().Get(ctx, accountID)
}

// RegisterVendor upgrades a regular user to a vendor.
func (s *CatalogService) RegisterVendor(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.Store.Accounts().Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Role != models.RoleUser {
		return nil, status.Newf(status.KindValidation, "only users can register as vendors, account %s is a %s", accountID, account.Role)
	}
	if err := s.Store.Accounts().SetRole(ctx, accountID, models.RoleVendor); err != nil {
		return nil, err
	}

	slog.Info("Account registered as vendor", "account_id", accountID)
	return s.Store.Accounts().Get(ctx, accountID)
}

// CreateTicket lists a new ticket for the vendor. It starts pending
// verification with every unit available.
func (s *CatalogService) CreateTicket(ctx context.Context, vendor *models.Account, in TicketInput) (*models.Ticket, error) {
	if vendor.Role != models.RoleVendor {
		return nil, status.New(status.KindForbidden, "only vendors can list tickets")
	}
	if vendor.IsFraud {
		return nil, status.Newf(status.KindVendorFraud, "vendor %s is flagged as fraud", vendor.ID)
	}
	if !vendor.IsActive {
		return nil, status.Newf(status.KindForbidden, "vendor %s is deactivated", vendor.ID)
	}

	switch {
	case strings.TrimSpace(in.Title) == "":
		return nil, status.New(status.KindValidation, "title is required")
	case in.Quantity < 1:
		return nil, status.New(status.KindValidation, "quantity must be at least 1")
	case in.Price.IsNegative():
		return nil, status.New(status.KindValidation, "price must not be negative")
	case !in.DepartureTime.After(s.Now()):
		return nil, status.New(status.KindValidation, "departure must be in the future")
	}

	ticket := &models.Ticket{
		VendorID:           vendor.ID,
		VendorName:         vendor.Name,
		VendorEmail:        vendor.Email,
		Title:              strings.TrimSpace(in.Title),
		From:               in.From,
		To:                 in.To,
		TransportType:      in.TransportType,
		Price:              in.Price,
		TotalQuantity:      in.Quantity,
		AvailableQuantity:  in.Quantity,
		DepartureTime:      in.DepartureTime.UTC(),
		Perks:              in.Perks,
		Image:              in.Image,
		VerificationStatus: models.VerificationPending,
		IsActive:           true,
	}
	if err := s.Store.Tickets().Create(ctx, ticket); err != nil {
		return nil, err
	}

	slog.Info("Ticket listed", "ticket_id", ticket.ID, "vendor_id", vendor.ID, "quantity", ticket.TotalQuantity)
	return ticket, nil
}

// UpdateTicket edits the vendor's own ticket. A new total quantity moves
// the available quantity by the same amount, and is refused when more
// units are already booked than the new total allows.
func (s *CatalogService) UpdateTicket(ctx context.Context, vendor *models.Account, ticketID string, in TicketUpdate) (*models.Ticket, error) {
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		ticket, err := tx.Tickets().Get(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.VendorID != vendor.ID {
			return status.Newf(status.KindForbidden, "ticket %s belongs to another vendor", ticketID)
		}
		if err := s.applyUpdate(ticket, in); err != nil {
			return err
		}
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}

		if in.Quantity == nil {
			return nil
		}
		delta := *in.Quantity - ticket.TotalQuantity
		if delta == 0 {
			return nil
		}
		ok, err := tx.Tickets().AdjustTotal(ctx, ticketID, delta)
		if err != nil {
			return err
		}
		if !ok {
			return status.Newf(status.KindValidation, "ticket %s has %d units booked, total cannot drop to %d",
				ticketID, ticket.TotalQuantity-ticket.AvailableQuantity, *in.Quantity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Ticket updated", "ticket_id", ticketID, "vendor_id", vendor.ID)
	return s.Store.Tickets().Get(ctx, ticketID)
}

func (s *CatalogService) applyUpdate(t *models.Ticket, in TicketUpdate) error {
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return status.New(status.KindValidation, "title is required")
		}
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			return status.New(status.KindValidation, "price must not be negative")
		}
		t.Price = *in.Price
	}
	if in.Quantity != nil && *in.Quantity < 1 {
		return status.New(status.KindValidation, "quantity must be at least 1")
	}
	if in.DepartureTime != nil {
		if !in.DepartureTime.After(s.Now()) {
			return status.New(status.KindValidation, "departure must be in the future")
		}
		t.DepartureTime = in.DepartureTime.UTC()
	}
	if in.From != nil {
		t.From = *in.From
	}
	if in.To != nil {
		t.To = *in.To
	}
	if in.TransportType != nil {
		t.TransportType = *in.TransportType
	}
	if in.Perks != nil {
		t.Perks = *in.Perks
	}
	if in.Image != nil {
		t.Image = *in.Image
	}
	return nil
}

// DeleteTicket hides the vendor's own ticket. Existing bookings keep
// their snapshot of it.
func (s *CatalogService) DeleteTicket(ctx context.Context, vendor *models.Account, ticketID string) error {
	ticket, err := s.Store.Tickets().Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.VendorID != vendor.ID {
		return status.Newf(status.KindForbidden, "ticket %s belongs to another vendor", ticketID)
	}
	if err := s.Store.Tickets().SetActive(ctx, ticketID, false); err != nil {
		return err
	}
	slog.Info("Ticket deleted", "ticket_id", ticketID, "vendor_id", vendor.ID)
	return nil
}

func (s *CatalogService) VendorTickets(ctx context.Context, vendorID string) ([]*models.Ticket, error) {
	return s.Store.Tickets().ListByVendor(ctx, vendorID)
}

// AdvertisedTickets is the public featured list.
func (s *CatalogService) AdvertisedTickets(ctx context.Context) ([]*models.Ticket, error) {
	return s.Store.Tickets().ListApproved(ctx, true, MaxAdvertised)
}

// LatestTickets is the public list of the newest bookable listings.
func (s *CatalogService) LatestTickets(ctx context.Context) ([]*models.Ticket, error) {
	return s.Store.Tickets().ListApproved(ctx, false, LatestLimit)
}

func (s *CatalogService) Ticket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.Store.Tickets().Get(ctx, ticketID)
}

func (s *CatalogService) SetVerification(ctx context.Context, ticketID string, v models.VerificationStatus) (*models.Ticket, error) {
	if !v.Valid() {
		return nil, status.Newf(status.KindValidation, "unknown verification status %q", v)
	}
	if err := s.Store.Tickets().SetVerification(ctx, ticketID, v); err != nil {
		return nil, err
	}
	slog.Info("Ticket verification changed", "ticket_id", ticketID, "verification", v)
	return s.Store.Tickets().Get(ctx, ticketID)
}

// SetAdvertised features or unfeatures a ticket. Only active approved
// tickets can be featured, and at most MaxAdvertised at a time.
func (s *CatalogService) SetAdvertised(ctx context.Context, ticketID string, advertised bool) (*models.Ticket, error) {
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		ticket, err := tx.Tickets().Get(ctx, ticketID)
		if err != nil {
			return err
		}
		if advertised {
			if !ticket.IsActive || ticket.VerificationStatus != models.VerificationApproved {
				return status.Newf(status.KindNotApproved, "ticket %s is not approved", ticketID)
			}
			n, err := tx.Tickets().CountAdvertised(ctx, ticketID)
			if err != nil {
				return err
			}
			if n >= MaxAdvertised {
				return status.Newf(status.KindValidation, "at most %d tickets can be advertised", MaxAdvertised)
			}
		}
		return tx.Tickets().SetAdvertised(ctx, ticketID, advertised)
	})
	if err != nil {
		return nil, err
	}
	return s.Store.Tickets().Get(ctx, ticketID)
}

// MarkFraud flags a vendor and takes all of their tickets off sale. It
// returns how many tickets were deactivated.
func (s *CatalogService) MarkFraud(ctx context.Context, vendorID string) (int, error) {
	var deactivated int
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		vendor, err := tx.Accounts().Get(ctx, vendorID)
		if err != nil {
			return err
		}
		if vendor.Role != models.RoleVendor {
			return status.Newf(status.KindValidation, "account %s is a %s, not a vendor", vendorID, vendor.Role)
		}
		if err := tx.Accounts().SetFraud(ctx, vendorID, true); err != nil {
			return err
		}
		deactivated, err = tx.Tickets().DeactivateByVendor(ctx, vendorID)
		return err
	})
	if err != nil {
		return 0, err
	}

	slog.Warn("Vendor marked as fraud", "vendor_id", vendorID, "tickets_deactivated", deactivated)
	return deactivated, nil
}
