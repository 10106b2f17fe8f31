package migrations

import (
	"ticket-checkout/internal/store"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		return store.EnsureCollection(app)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId(store.OrdersCollection)
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
