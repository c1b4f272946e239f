package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("accounts")

		collection.Fields.Add(
			&core.TextField{Name: "name"},
			&core.TextField{Name: "email", Required: true},
			&core.TextField{Name: "photo_url"},
			&core.SelectField{Name: "role", Required: true, MaxSelect: 1, Values: []string{"user", "vendor", "admin"}},
			&core.BoolField{Name: "is_active"},
			&core.BoolField{Name: "is_fraud"},
			&core.TextField{Name: "subject_id"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_accounts_email", true, "email", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("accounts")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
