package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type ProductFilter struct {
	Category      Category // empty = any
	AvailableOnly bool     // stock > 0
	MaxStock      *int     // stock < *MaxStock
}

type OrderFilter struct {
	UserID string
	Status Status
	From   time.Time // inclusive, zero = unbounded
	To     time.Time // exclusive, zero = unbounded
}

// Repo is the persistence contract of the storefront core. Finders return
// ErrNotFound for missing rows. Product listings never include soft-deleted
// products; FindProduct does, and callers apply the predicate themselves.
type Repo interface {
	FindUser(ctx context.Context, id string) (User, error)
	SaveUser(ctx context.Context, u *User) error

	FindProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)
	SaveProduct(ctx context.Context, p *Product) error

	FindCartByUser(ctx context.Context, userID string) (Cart, error)
	SaveCart(ctx context.Context, c *Cart) error
	DeleteCart(ctx context.Context, cartID string) error

	CreateOrder(ctx context.Context, o *Order) error
	UpdateOrder(ctx context.Context, o *Order) error
	FindOrder(ctx context.Context, id string) (Order, error)
	DeleteOrder(ctx context.Context, id string) error
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
	CountOrders(ctx context.Context, f OrderFilter) (int, error)
	SumOrderTotals(ctx context.Context, f OrderFilter) (decimal.Decimal, error)
}

// Store runs fn inside one atomic transaction. Rows read through the
// transactional Repo are locked until commit where the engine supports it.
// Any error returned by fn rolls everything back.
type Store interface {
	Repo
	InTx(ctx context.Context, fn func(ctx context.Context, r Repo) error) error
}
