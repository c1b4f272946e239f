// Package mongostore persists the marketplace in MongoDB. Counter guards
// are part of the update filter so each check-and-write is one operation.
// WithTx needs a replica set or sharded cluster.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
)

const (
	ticketsCollection      = "tickets"
	bookingsCollection     = "bookings"
	transactionsCollection = "transactions"
	accountsCollection     = "accounts"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and pings the primary before returning.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	slog.Info("Connected to MongoDB", "database", database)
	return New(client, client.Database(database)), nil
}

func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{client: client, db: db}
}

// EnsureIndexes creates the unique and lookup indexes the repositories
// rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		transactionsCollection: {
			{Keys: bson.D{{Key: "transactionId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		accountsCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		bookingsCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}}},
			{Keys: bson.D{{Key: "vendorId", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "ticketId", Value: 1}, {Key: "status", Value: 1}}},
		},
		ticketsCollection: {
			{Keys: bson.D{{Key: "vendorId", Value: 1}}},
		},
	}

	for name, idx := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Tickets() store.TicketRepository {
	return &tickets{s.db.Collection(ticketsCollection)}
}

func (s *Store) Bookings() store.BookingRepository {
	return &bookings{s.db.Collection(bookingsCollection)}
}

func (s *Store) Transactions() store.TransactionRepository {
	return &transactions{s.db.Collection(transactionsCollection)}
}

func (s *Store) Accounts() store.AccountRepository {
	return &accounts{s.db.Collection(accountsCollection)}
}

// WithTx runs fn in a multi-document transaction. Repositories pick the
// session up from the context fn receives.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, s)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	})
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func now() time.Time { return time.Now().UTC() }

func newest() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
}

func findOne[T any](ctx context.Context, c *mongo.Collection, filter bson.M, entity, key string) (*T, error) {
	var doc T
	if err := c.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.NotFound(entity, key)
		}
		return nil, fmt.Errorf("find %s %s: %w", entity, key, err)
	}
	return &doc, nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]T, error) {
	cursor, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func updated(res *mongo.UpdateResult, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// tickets

type tickets struct{ c *mongo.Collection }

func (r *tickets) Get(ctx context.Context, id string) (*models.Ticket, error) {
	doc, err := findOne[ticketDoc](ctx, r.c, bson.M{"_id": id}, "ticket", id)
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (r *tickets) Create(ctx context.Context, t *models.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	if _, err := r.c.InsertOne(ctx, newTicketDoc(t)); err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *tickets) ListByVendor(ctx context.Context, vendorID string) ([]*models.Ticket, error) {
	docs, err := findAll[ticketDoc](ctx, r.c, bson.M{"vendorId": vendorID}, newest())
	if err != nil {
		return nil, fmt.Errorf("list vendor tickets: %w", err)
	}
	out := make([]*models.Ticket, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (r *tickets) ListApproved(ctx context.Context, advertisedOnly bool, limit int) ([]*models.Ticket, error) {
	filter := bson.M{"isActive": true, "verificationStatus": string(models.VerificationApproved)}
	if advertisedOnly {
		filter["isAdvertised"] = true
	}
	opts := newest()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	docs, err := findAll[ticketDoc](ctx, r.c, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list approved tickets: %w", err)
	}
	out := make([]*models.Ticket, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (r *tickets) IDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	docs, err := findAll[struct {
		ID string `bson:"_id"`
	}](ctx, r.c, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list ticket ids: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (r *tickets) set(ctx context.Context, id string, fields bson.M) error {
	fields["updatedAt"] = now()
	ok, err := updated(r.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields}))
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", id, err)
	}
	if !ok {
		return store.NotFound("ticket", id)
	}
	return nil
}

func (r *tickets) Update(ctx context.Context, t *models.Ticket) error {
	return r.set(ctx, t.ID, bson.M{
		"title":         t.Title,
		"from":          t.From,
		"to":            t.To,
		"transportType": t.TransportType,
		"price":         toDecimal128(t.Price),
		"departureTime": t.DepartureTime.UTC(),
		"perks":         t.Perks,
		"image":         t.Image,
	})
}

func (r *tickets) SetVerification(ctx context.Context, id string, v models.VerificationStatus) error {
	return r.set(ctx, id, bson.M{"verificationStatus": string(v)})
}

func (r *tickets) SetActive(ctx context.Context, id string, active bool) error {
	return r.set(ctx, id, bson.M{"isActive": active})
}

func (r *tickets) SetAdvertised(ctx context.Context, id string, advertised bool) error {
	return r.set(ctx, id, bson.M{"isAdvertised": advertised})
}

func (r *tickets) SetAvailable(ctx context.Context, id string, available int) error {
	return r.set(ctx, id, bson.M{"availableQuantity": available})
}

func (r *tickets) DeactivateByVendor(ctx context.Context, vendorID string) (int, error) {
	res, err := r.c.UpdateMany(ctx,
		bson.M{"vendorId": vendorID, "isActive": true},
		bson.M{"$set": bson.M{"isActive": false, "updatedAt": now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate vendor tickets: %w", err)
	}
	return int(res.ModifiedCount), nil
}

func (r *tickets) CountAdvertised(ctx context.Context, excludeID string) (int, error) {
	n, err := r.c.CountDocuments(ctx, bson.M{"isAdvertised": true, "_id": bson.M{"$ne": excludeID}})
	if err != nil {
		return 0, fmt.Errorf("count advertised tickets: %w", err)
	}
	return int(n), nil
}

func (r *tickets) Decrement(ctx context.Context, id string, qty int) (bool, error) {
	ok, err := updated(r.c.UpdateOne(ctx,
		bson.M{
			"_id":                id,
			"isActive":           true,
			"verificationStatus": string(models.VerificationApproved),
			"availableQuantity":  bson.M{"$gte": qty},
		},
		bson.M{
			"$inc": bson.M{"availableQuantity": -qty},
			"$set": bson.M{"updatedAt": now()},
		},
	))
	if err != nil {
		return false, fmt.Errorf("decrement ticket %s: %w", id, err)
	}
	return ok, nil
}

func (r *tickets) Increment(ctx context.Context, id string, qty int) (bool, error) {
	ok, err := updated(r.c.UpdateOne(ctx,
		bson.M{
			"_id": id,
			"$expr": bson.M{"$lte": bson.A{
				bson.M{"$add": bson.A{"$availableQuantity", qty}},
				"$totalQuantity",
			}},
		},
		bson.M{
			"$inc": bson.M{"availableQuantity": qty},
			"$set": bson.M{"updatedAt": now()},
		},
	))
	if err != nil {
		return false, fmt.Errorf("increment ticket %s: %w", id, err)
	}
	return ok, nil
}

func (r *tickets) AdjustTotal(ctx context.Context, id string, delta int) (bool, error) {
	ok, err := updated(r.c.UpdateOne(ctx,
		bson.M{"_id": id, "availableQuantity": bson.M{"$gte": -delta}},
		bson.M{
			"$inc": bson.M{"totalQuantity": delta, "availableQuantity": delta},
			"$set": bson.M{"updatedAt": now()},
		},
	))
	if err != nil {
		return false, fmt.Errorf("adjust ticket %s total: %w", id, err)
	}
	return ok, nil
}

// bookings

type bookings struct{ c *mongo.Collection }

func (r *bookings) Get(ctx context.Context, id string) (*models.Booking, error) {
	doc, err := findOne[bookingDoc](ctx, r.c, bson.M{"_id": id}, "booking", id)
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (r *bookings) Create(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = now()
	b.UpdatedAt = b.CreatedAt
	if _, err := r.c.InsertOne(ctx, newBookingDoc(b)); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *bookings) list(ctx context.Context, filter bson.M) ([]*models.Booking, error) {
	docs, err := findAll[bookingDoc](ctx, r.c, filter, newest())
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]*models.Booking, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (r *bookings) ListByUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	return r.list(ctx, bson.M{"userId": userID})
}

func (r *bookings) ListByVendor(ctx context.Context, vendorID string, st models.BookingStatus) ([]*models.Booking, error) {
	filter := bson.M{"vendorId": vendorID}
	if st != "" {
		filter["status"] = string(st)
	}
	return r.list(ctx, filter)
}

func (r *bookings) CompareAndSetStatus(ctx context.Context, id string, from, to models.BookingStatus) (bool, error) {
	ok, err := updated(r.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updatedAt": now()}},
	))
	if err != nil {
		return false, fmt.Errorf("update booking %s status: %w", id, err)
	}
	return ok, nil
}

func (r *bookings) Settle(ctx context.Context, id, paymentID string, at time.Time) (bool, error) {
	ok, err := updated(r.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(models.BookingAccepted)},
		bson.M{"$set": bson.M{
			"status":        string(models.BookingPaid),
			"paymentStatus": string(models.PaymentPaid),
			"paymentId":     paymentID,
			"paymentDate":   at.UTC(),
			"updatedAt":     now(),
		}},
	))
	if err != nil {
		return false, fmt.Errorf("settle booking %s: %w", id, err)
	}
	return ok, nil
}

func (r *bookings) DeleteIfStatus(ctx context.Context, id string, st models.BookingStatus) (bool, error) {
	res, err := r.c.DeleteOne(ctx, bson.M{"_id": id, "status": string(st)})
	if err != nil {
		return false, fmt.Errorf("delete booking %s: %w", id, err)
	}
	return res.DeletedCount > 0, nil
}

func (r *bookings) SumActiveQuantity(ctx context.Context, ticketID string) (int, error) {
	active := make(bson.A, 0, len(store.ActiveStatuses))
	for _, st := range store.ActiveStatuses {
		active = append(active, string(st))
	}

	cursor, err := r.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"ticketId": ticketID, "status": bson.M{"$in": active}}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$quantity"}}}},
	})
	if err != nil {
		return 0, fmt.Errorf("sum booked quantity: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total int `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("sum booked quantity: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// transactions

type transactions struct{ c *mongo.Collection }

func (r *transactions) Get(ctx context.Context, id string) (*models.Transaction, error) {
	doc, err := findOne[transactionDoc](ctx, r.c, bson.M{"_id": id}, "transaction", id)
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (r *transactions) GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	doc, err := findOne[transactionDoc](ctx, r.c, bson.M{"transactionId": externalID}, "transaction", externalID)
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (r *transactions) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Transaction, error) {
	opts := newest()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	docs, err := findAll[transactionDoc](ctx, r.c, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]*models.Transaction, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

// Insert upserts on transactionId so an existing record is left untouched
// without raising a duplicate-key error, which would abort an enclosing
// transaction. The unique index still settles concurrent upserts.
func (r *transactions) Insert(ctx context.Context, tx *models.Transaction) (bool, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.CreatedAt = now()

	res, err := r.c.UpdateOne(ctx,
		bson.M{"transactionId": tx.TransactionID},
		bson.M{"$setOnInsert": newTransactionDoc(tx)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

// accounts

type accounts struct{ c *mongo.Collection }

func (r *accounts) Get(ctx context.Context, id string) (*models.Account, error) {
	doc, err := findOne[accountDoc](ctx, r.c, bson.M{"_id": id}, "account", id)
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (r *accounts) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	doc, err := findOne[accountDoc](ctx, r.c, bson.M{"email": email}, "account", email)
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (r *accounts) Create(ctx context.Context, a *models.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now()
	if _, err := r.c.InsertOne(ctx, newAccountDoc(a)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return status.Newf(status.KindValidation, "account %s already exists", a.Email)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *accounts) set(ctx context.Context, id string, fields bson.M) error {
	ok, err := updated(r.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields}))
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}
	if !ok {
		return store.NotFound("account", id)
	}
	return nil
}

func (r *accounts) SetRole(ctx context.Context, id string, role models.Role) error {
	return r.set(ctx, id, bson.M{"role": string(role)})
}

func (r *accounts) SetFraud(ctx context.Context, id string, fraud bool) error {
	return r.set(ctx, id, bson.M{"isFraud": fraud})
}
