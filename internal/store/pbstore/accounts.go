package pbstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/pocketbase/core"

	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
)

type accounts struct {
	app core.App
}

func recordToAccount(r *core.Record) *models.Account {
	return &models.Account{
		ID:        r.Id,
		Name:      r.GetString("name"),
		Email:     r.GetString("email"),
		PhotoURL:  r.GetString("photo_url"),
		Role:      models.Role(r.GetString("role")),
		IsActive:  r.GetBool("is_active"),
		IsFraud:   r.GetBool("is_fraud"),
		SubjectID: r.GetString("subject_id"),
		CreatedAt: r.GetDateTime("created").Time(),
	}
}

func (r *accounts) Get(_ context.Context, id string) (*models.Account, error) {
	record, err := findByID(r.app, accountsCollection, "account", id)
	if err != nil {
		return nil, err
	}
	return recordToAccount(record), nil
}

func (r *accounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	record, err := r.app.FindFirstRecordByData(accountsCollection, "email", email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("account", email)
		}
		return nil, fmt.Errorf("find account %s: %w", email, err)
	}
	return recordToAccount(record), nil
}

func (r *accounts) Create(_ context.Context, a *models.Account) error {
	record, err := newRecord(r.app, accountsCollection, a.ID)
	if err != nil {
		return err
	}

	record.Set("name", a.Name)
	record.Set("email", a.Email)
	record.Set("photo_url", a.PhotoURL)
	record.Set("role", string(a.Role))
	record.Set("is_active", a.IsActive)
	record.Set("is_fraud", a.IsFraud)
	record.Set("subject_id", a.SubjectID)

	if err := r.app.Save(record); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	*a = *recordToAccount(record)
	return nil
}

func (r *accounts) SetRole(_ context.Context, id string, role models.Role) error {
	record, err := findByID(r.app, accountsCollection, "account", id)
	if err != nil {
		return err
	}
	record.Set("role", string(role))
	return r.app.Save(record)
}

func (r *accounts) SetFraud(_ context.Context, id string, fraud bool) error {
	record, err := findByID(r.app, accountsCollection, "account", id)
	if err != nil {
		return err
	}
	record.Set("is_fraud", fraud)
	return r.app.Save(record)
}
