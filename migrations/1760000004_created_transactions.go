package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("transactions")

		collection.Fields.Add(
			&core.TextField{Name: "booking_id", Required: true},
			&core.TextField{Name: "ticket_id"},
			&core.TextField{Name: "user_id", Required: true},
			&core.TextField{Name: "ticket_title"},
			&core.NumberField{Name: "amount"},
			&core.TextField{Name: "currency"},
			&core.TextField{Name: "payment_method"},
			&core.TextField{Name: "transaction_id", Required: true},
			&core.SelectField{Name: "status", MaxSelect: 1, Values: []string{"success", "failed", "pending"}},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// one settlement per external payment
		collection.AddIndex("idx_transactions_external", true, "transaction_id", "")
		collection.AddIndex("idx_transactions_user", false, "user_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("transactions")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
