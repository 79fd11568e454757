package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// Fixed ids so repeated seeding upserts instead of duplicating.
const (
	SeedAdminID    = "00000000-0000-0000-0000-000000000001"
	SeedCustomerID = "00000000-0000-0000-0000-000000000002"
)

type seedProduct struct {
	id, name, desc, price string
	stock              int
	category           orders.Category
}

var demoCatalog = []seedProduct{
	{"10000000-0000-0000-0000-000000000001", "Sony WH-1000XM5", "Noise cancelling headphones", "399.99", 25, orders.CategoryAudio},
	{"10000000-0000-0000-0000-000000000002", "JBL Flip 6", "Portable bluetooth speaker", "129.99", 40, orders.CategoryAudio},
	{"10000000-0000-0000-0000-000000000003", "iPhone 15 Pro", "Titanium smartphone", "1199.99", 15, orders.CategorySmartphones},
	{"10000000-0000-0000-0000-000000000004", "Samsung Galaxy S24 Ultra", "Android flagship", "1099.99", 20, orders.CategorySmartphones},
	{"10000000-0000-0000-0000-000000000005", "MacBook Pro 14\"", "M3 Pro laptop", "2499.99", 10, orders.CategoryLaptops},
	{"10000000-0000-0000-0000-000000000006", "Dell XPS 15", "OLED laptop", "1899.99", 12, orders.CategoryLaptops},
	{"10000000-0000-0000-0000-000000000007", "PlayStation 5", "Console", "549.99", 8, orders.CategoryGaming},
	{"10000000-0000-0000-0000-000000000008", "Logitech G Pro X Superlight", "Wireless gaming mouse", "149.99", 30, orders.CategoryGaming},
	{"10000000-0000-0000-0000-000000000009", "Canon EOS R6 Mark II", "Full frame mirrorless camera", "2499.99", 6, orders.CategoryImage},
}

// Seed loads the demo catalog plus one admin and one customer.
func Seed(ctx context.Context, store orders.Store) error {
	now := time.Now().UTC()
	return store.InTx(ctx, func(ctx context.Context, r orders.Repo) error {
		users := []orders.User{
			{ID: SeedAdminID, Email: "admin@storefront.local", Name: "Admin", Role: orders.RoleAdmin, CreatedAt: now},
			{ID: SeedCustomerID, Email: "customer@storefront.local", Name: "Customer", Role: orders.RoleUser, CreatedAt: now},
		}
		for i := range users {
			if err := r.SaveUser(ctx, &users[i]); err != nil {
				return err
			}
		}
		for _, sp := range demoCatalog {
			p := orders.Product{
				ID:          sp.id,
				Name:        sp.name,
				Description: sp.desc,
				Price:       decimal.RequireFromString(sp.price),
				Stock:       sp.stock,
				Category:    sp.category,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := r.SaveProduct(ctx, &p); err != nil {
				return err
			}
		}
		return nil
	})
}
