package mongostore

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ticket-marketplace/models"
)

type ticketDoc struct {
	ID                 string               `bson:"_id"`
	VendorID           string               `bson:"vendorId"`
	VendorName         string               `bson:"vendorName"`
	VendorEmail        string               `bson:"vendorEmail"`
	Title              string               `bson:"title"`
	From               string               `bson:"from"`
	To                 string               `bson:"to"`
	TransportType      string               `bson:"transportType"`
	Price              primitive.Decimal128 `bson:"price"`
	TotalQuantity      int                  `bson:"totalQuantity"`
	AvailableQuantity  int                  `bson:"availableQuantity"`
	DepartureTime      time.Time            `bson:"departureTime"`
	Perks              []string             `bson:"perks"`
	Image              string               `bson:"image"`
	VerificationStatus string               `bson:"verificationStatus"`
	IsActive           bool                 `bson:"isActive"`
	IsAdvertised       bool                 `bson:"isAdvertised"`
	CreatedAt          time.Time            `bson:"createdAt"`
	UpdatedAt          time.Time            `bson:"updatedAt"`
}

type bookingDoc struct {
	ID            string               `bson:"_id"`
	TicketID      string               `bson:"ticketId"`
	UserID        string               `bson:"userId"`
	VendorID      string               `bson:"vendorId"`
	UserName      string               `bson:"userName"`
	UserEmail     string               `bson:"userEmail"`
	TicketTitle   string               `bson:"ticketTitle"`
	TicketPrice   primitive.Decimal128 `bson:"ticketPrice"`
	TransportType string               `bson:"transportType"`
	From          string               `bson:"from"`
	To            string               `bson:"to"`
	Quantity      int                  `bson:"quantity"`
	TotalPrice    primitive.Decimal128 `bson:"totalPrice"`
	Status        string               `bson:"status"`
	PaymentStatus string               `bson:"paymentStatus"`
	PaymentID     string               `bson:"paymentId,omitempty"`
	PaymentDate   *time.Time           `bson:"paymentDate,omitempty"`
	DepartureTime time.Time            `bson:"departureTime"`
	CreatedAt     time.Time            `bson:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

type transactionDoc struct {
	ID            string               `bson:"_id"`
	BookingID     string               `bson:"bookingId"`
	TicketID      string               `bson:"ticketId"`
	UserID        string               `bson:"userId"`
	TicketTitle   string               `bson:"ticketTitle"`
	Amount        primitive.Decimal128 `bson:"amount"`
	Currency      string               `bson:"currency"`
	PaymentMethod string               `bson:"paymentMethod"`
	TransactionID string               `bson:"transactionId"`
	Status        string               `bson:"status"`
	CreatedAt     time.Time            `bson:"createdAt"`
}

type accountDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	PhotoURL  string    `bson:"photoUrl"`
	Role      string    `bson:"role"`
	IsActive  bool      `bson:"isActive"`
	IsFraud   bool      `bson:"isFraud"`
	SubjectID string    `bson:"subjectId"`
	CreatedAt time.Time `bson:"createdAt"`
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func newTicketDoc(t *models.Ticket) ticketDoc {
	return ticketDoc{
		ID:                 t.ID,
		VendorID:           t.VendorID,
		VendorName:         t.VendorName,
		VendorEmail:        t.VendorEmail,
		Title:              t.Title,
		From:               t.From,
		To:                 t.To,
		TransportType:      t.TransportType,
		Price:              toDecimal128(t.Price),
		TotalQuantity:      t.TotalQuantity,
		AvailableQuantity:  t.AvailableQuantity,
		DepartureTime:      t.DepartureTime.UTC(),
		Perks:              t.Perks,
		Image:              t.Image,
		VerificationStatus: string(t.VerificationStatus),
		IsActive:           t.IsActive,
		IsAdvertised:       t.IsAdvertised,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func (d ticketDoc) model() *models.Ticket {
	return &models.Ticket{
		ID:                 d.ID,
		VendorID:           d.VendorID,
		VendorName:         d.VendorName,
		VendorEmail:        d.VendorEmail,
		Title:              d.Title,
		From:               d.From,
		To:                 d.To,
		TransportType:      d.TransportType,
		Price:              fromDecimal128(d.Price),
		TotalQuantity:      d.TotalQuantity,
		AvailableQuantity:  d.AvailableQuantity,
		DepartureTime:      d.DepartureTime.UTC(),
		Perks:              d.Perks,
		Image:              d.Image,
		VerificationStatus: models.VerificationStatus(d.VerificationStatus),
		IsActive:           d.IsActive,
		IsAdvertised:       d.IsAdvertised,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func newBookingDoc(b *models.Booking) bookingDoc {
	return bookingDoc{
		ID:            b.ID,
		TicketID:      b.TicketID,
		UserID:        b.UserID,
		VendorID:      b.VendorID,
		UserName:      b.UserName,
		UserEmail:     b.UserEmail,
		TicketTitle:   b.TicketTitle,
		TicketPrice:   toDecimal128(b.TicketPrice),
		TransportType: b.TransportType,
		From:          b.From,
		To:            b.To,
		Quantity:      b.Quantity,
		TotalPrice:    toDecimal128(b.TotalPrice),
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		PaymentID:     b.PaymentID,
		PaymentDate:   b.PaymentDate,
		DepartureTime: b.DepartureTime.UTC(),
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func (d bookingDoc) model() *models.Booking {
	return &models.Booking{
		ID:            d.ID,
		TicketID:      d.TicketID,
		UserID:        d.UserID,
		VendorID:      d.VendorID,
		UserName:      d.UserName,
		UserEmail:     d.UserEmail,
		TicketTitle:   d.TicketTitle,
		TicketPrice:   fromDecimal128(d.TicketPrice),
		TransportType: d.TransportType,
		From:          d.From,
		To:            d.To,
		Quantity:      d.Quantity,
		TotalPrice:    fromDecimal128(d.TotalPrice),
		Status:        models.BookingStatus(d.Status),
		PaymentStatus: models.PaymentStatus(d.PaymentStatus),
		PaymentID:     d.PaymentID,
		PaymentDate:   d.PaymentDate,
		DepartureTime: d.DepartureTime.UTC(),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func newTransactionDoc(t *models.Transaction) transactionDoc {
	return transactionDoc{
		ID:            t.ID,
		BookingID:     t.BookingID,
		TicketID:      t.TicketID,
		UserID:        t.UserID,
		TicketTitle:   t.TicketTitle,
		Amount:        toDecimal128(t.Amount),
		Currency:      t.Currency,
		PaymentMethod: t.PaymentMethod,
		TransactionID: t.TransactionID,
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt,
	}
}

func (d transactionDoc) model() *models.Transaction {
	return &models.Transaction{
		ID:            d.ID,
		BookingID:     d.BookingID,
		TicketID:      d.TicketID,
		UserID:        d.UserID,
		TicketTitle:   d.TicketTitle,
		Amount:        fromDecimal128(d.Amount),
		Currency:      d.Currency,
		PaymentMethod: d.PaymentMethod,
		TransactionID: d.TransactionID,
		Status:        models.TransactionStatus(d.Status),
		CreatedAt:     d.CreatedAt,
	}
}

func newAccountDoc(a *models.Account) accountDoc {
	return accountDoc{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		PhotoURL:  a.PhotoURL,
		Role:      string(a.Role),
		IsActive:  a.IsActive,
		IsFraud:   a.IsFraud,
		SubjectID: a.SubjectID,
		CreatedAt: a.CreatedAt,
	}
}

func (d accountDoc) model() *models.Account {
	return &models.Account{
		ID:        d.ID,
		Name:      d.Name,
		Email:     d.Email,
		PhotoURL:  d.PhotoURL,
		Role:      models.Role(d.Role),
		IsActive:  d.IsActive,
		IsFraud:   d.IsFraud,
		SubjectID: d.SubjectID,
		CreatedAt: d.CreatedAt,
	}
}
