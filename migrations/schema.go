package migrations

import (
	"fmt"

	"ticket-resale/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	CollectionUsers        = "users"
	CollectionTickets      = "tickets"
	CollectionListings     = "listings"
	CollectionTransactions = "transactions"
)

// EnsureSchema creates the marketplace collections that are missing and
// adds the role field to users. Safe to run more than once.
func EnsureSchema(app core.App) error {
	users, err := app.FindCollectionByNameOrId(CollectionUsers)
	if err != nil {
		return fmt.Errorf("find users collection: %w", err)
	}
	if users.Fields.GetByName("role") == nil {
		users.Fields.Add(&core.SelectField{
			Name:      "role",
			Values:    []string{string(models.RoleUser), string(models.RoleAdmin)},
			MaxSelect: 1,
		})
		if err := app.Save(users); err != nil {
			return fmt.Errorf("add users.role: %w", err)
		}
	}

	tickets, err := ensureCollection(app, CollectionTickets, func(c *core.Collection) {
		c.Fields.Add(
			&core.RelationField{Name: "owner", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.TextField{Name: "event"},
			&core.TextField{Name: "seat_number"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		c.AddIndex("idx_tickets_owner", false, "owner", "")
	})
	if err != nil {
		return err
	}

	_, err = ensureCollection(app, CollectionListings, func(c *core.Collection) {
		c.Fields.Add(
			&core.RelationField{Name: "ticket", Required: true, CollectionId: tickets.Id, MaxSelect: 1},
			&core.NumberField{Name: "price", Required: true, Min: types.Pointer(0.0)},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				Values:    []string{string(models.ListingOpen), string(models.ListingClosed)},
				MaxSelect: 1,
			},
			&core.RelationField{Name: "created_by", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.RelationField{Name: "updated_by", CollectionId: users.Id, MaxSelect: 1},
			&core.NumberField{Name: "revision", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		c.AddIndex("idx_listings_ticket", true, "ticket", "")
	})
	if err != nil {
		return err
	}

	_, err = ensureCollection(app, CollectionTransactions, func(c *core.Collection) {
		c.Fields.Add(
			&core.RelationField{Name: "ticket", Required: true, CollectionId: tickets.Id, MaxSelect: 1},
			&core.TextField{Name: "listing", Required: true},
			&core.RelationField{Name: "seller", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.RelationField{Name: "buyer", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.NumberField{Name: "sale_price", Required: true, Min: types.Pointer(0.0)},
			&core.RelationField{Name: "created_by", CollectionId: users.Id, MaxSelect: 1},
			&core.RelationField{Name: "updated_by", CollectionId: users.Id, MaxSelect: 1},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		c.AddIndex("idx_transactions_ticket", false, "ticket", "")
		c.AddIndex("idx_transactions_seller", false, "seller", "")
		c.AddIndex("idx_transactions_buyer", false, "buyer", "")
	})
	return err
}

func ensureCollection(app core.App, name string, build func(c *core.Collection)) (*core.Collection, error) {
	if existing, err := app.FindCollectionByNameOrId(name); err == nil {
		return existing, nil
	}

	c := core.NewBaseCollection(name)
	build(c)
	if err := app.Save(c); err != nil {
		return nil, fmt.Errorf("create %s collection: %w", name, err)
	}
	return c, nil
}

// DropSchema removes the marketplace collections in dependency order.
func DropSchema(app core.App) error {
	for _, name := range []string{CollectionTransactions, CollectionListings, CollectionTickets} {
		c, err := app.FindCollectionByNameOrId(name)
		if err != nil {
			continue
		}
		if err := app.Delete(c); err != nil {
			return fmt.Errorf("drop %s collection: %w", name, err)
		}
	}
	return nil
}
