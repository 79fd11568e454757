package httpx

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/checkout"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

// StatusCache is the read-through cache behind GET /orders/{id}/status.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (orders.StatusSnapshot, bool, error)
	Set(ctx context.Context, s orders.StatusSnapshot) error
	Invalidate(ctx context.Context, orderID string) error
}

type Deps struct {
	Users    UserFinder
	Catalog  *catalog.Service
	Carts    *cart.Service
	Orders   *checkout.Service
	Status   StatusCache // optional
	LowStock int         // default threshold for /admin/products/low-stock
	Log      logrus.FieldLogger
}

type API struct {
	users    UserFinder
	catalog  *catalog.Service
	carts    *cart.Service
	orders   *checkout.Service
	status   StatusCache
	lowStock int
	log      logrus.FieldLogger
}

func NewAPI(d Deps) *API {
	if d.LowStock <= 0 {
		d.LowStock = 5
	}
	return &API{
		users:    d.Users,
		catalog:  d.Catalog,
		carts:    d.Carts,
		orders:   d.Orders,
		status:   d.Status,
		lowStock: d.LowStock,
		log:      d.Log,
	}
}

func (a *API) Register(r chi.Router) {
	r.Get("/products", a.listProducts)
	r.Get("/products/{id}", a.getProduct)

	r.Group(func(r chi.Router) {
		r.Use(a.identify)

		r.Get("/cart", a.getCart)
		r.Get("/cart/summary", a.cartSummary)
		r.Post("/cart/items", a.addCartItem)
		r.Put("/cart/items/{productID}", a.updateCartItem)
		r.Delete("/cart/items/{productID}", a.removeCartItem)
		r.Delete("/cart", a.clearCart)

		r.Post("/checkout", a.checkout)
		r.Get("/orders", a.listOrders)
		r.Get("/orders/{id}", a.getOrder)
		r.Get("/orders/{id}/status", a.getOrderStatus)
		r.Post("/orders/{id}/cancel", a.cancelOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Use(a.adminOnly)
			r.Get("/orders", a.adminListOrders)
			r.Post("/orders/{id}/status", a.adminUpdateStatus)
			r.Get("/stats", a.adminStats)
			r.Post("/products", a.adminCreateProduct)
			r.Get("/products/low-stock", a.adminLowStock)
			r.Put("/products/{id}/price", a.adminSetPrice)
			r.Put("/products/{id}/stock", a.adminSetStock)
			r.Delete("/products/{id}", a.adminDeleteProduct)
		})
	})
}

// cacheStatus refreshes the status cache after a committed change. Failures
// only cost a cache miss later.
func (a *API) cacheStatus(ctx context.Context, o orders.Order) {
	if a.status == nil {
		return
	}
	if err := a.status.Set(ctx, o.Snapshot()); err != nil {
		a.log.WithError(err).WithField("order_id", o.ID).Warn("status cache set")
	}
}

func (a *API) dropStatus(ctx context.Context, orderID string) {
	if a.status == nil {
		return
	}
	if err := a.status.Invalidate(ctx, orderID); err != nil {
		a.log.WithError(err).WithField("order_id", orderID).Warn("status cache invalidate")
	}
}
