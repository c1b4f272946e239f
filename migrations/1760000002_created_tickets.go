package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.TextField{Name: "vendor_id", Required: true},
			&core.TextField{Name: "vendor_name"},
			&core.TextField{Name: "vendor_email"},
			&core.TextField{Name: "title", Required: true},
			&core.TextField{Name: "origin"},
			&core.TextField{Name: "destination"},
			&core.TextField{Name: "transport_type"},
			&core.NumberField{Name: "price", Min: types.Pointer(0.0)},
			&core.NumberField{Name: "total_quantity", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "available_quantity", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.DateField{Name: "departure_time", Required: true},
			&core.JSONField{Name: "perks"},
			&core.TextField{Name: "image"},
			&core.SelectField{Name: "verification_status", Required: true, MaxSelect: 1, Values: []string{"pending", "approved", "rejected"}},
			&core.BoolField{Name: "is_active"},
			&core.BoolField{Name: "is_advertised"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_tickets_vendor", false, "vendor_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
