package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("bookings")

		collection.Fields.Add(
			&core.TextField{Name: "ticket_id", Required: true},
			&core.TextField{Name: "user_id", Required: true},
			&core.TextField{Name: "vendor_id", Required: true},
			&core.TextField{Name: "user_name"},
			&core.TextField{Name: "user_email"},
			&core.TextField{Name: "ticket_title"},
			&core.NumberField{Name: "ticket_price", Min: types.Pointer(0.0)},
			&core.TextField{Name: "transport_type"},
			&core.TextField{Name: "origin"},
			&core.TextField{Name: "destination"},
			&core.NumberField{Name: "quantity", OnlyInt: true, Min: types.Pointer(1.0)},
			&core.NumberField{Name: "total_price", Min: types.Pointer(0.0)},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"pending", "accepted", "rejected", "paid"}},
			&core.SelectField{Name: "payment_status", MaxSelect: 1, Values: []string{"pending", "paid"}},
			&core.TextField{Name: "payment_id"},
			&core.DateField{Name: "payment_date"},
			&core.DateField{Name: "departure_time"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_bookings_user", false, "user_id", "")
		collection.AddIndex("idx_bookings_vendor_status", false, "vendor_id, status", "")
		collection.AddIndex("idx_bookings_ticket_status", false, "ticket_id, status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("bookings")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
