package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

type productResp struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       string          `json:"price"`
	Stock       int             `json:"stock"`
	Category    orders.Category `json:"category"`
}

func toProduct(p orders.Product) productResp {
	return productResp{ID: p.ID, Name: p.Name, Description: p.Description, Price: money(p.Price), Stock: p.Stock, Category: p.Category}
}

func toProducts(ps []orders.Product) []productResp {
	out := make([]productResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProduct(p))
	}
	return out
}

type cartLineResp struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
	Available bool   `json:"available"`
}

type cartResp struct {
	ID        string         `json:"id"`
	Lines     []cartLineResp `json:"lines"`
	Items     int            `json:"items"`
	Total     string         `json:"total"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toCart(v cart.View) cartResp {
	lines := make([]cartLineResp, 0, len(v.Lines))
	for _, l := range v.Lines {
		lines = append(lines, cartLineResp{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: money(l.UnitPrice),
			Quantity:  l.Quantity,
			Subtotal:  money(l.Subtotal()),
			Available: l.Available,
		})
	}
	return cartResp{ID: v.Cart.ID, Lines: lines, Items: v.Cart.ItemCount(), Total: money(v.Total), UpdatedAt: v.Cart.UpdatedAt}
}

type summaryResp struct {
	Total string `json:"total"`
	Items int    `json:"items"`
	Empty bool   `json:"empty"`
}

type orderLineResp struct {
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
	Subtotal        string `json:"subtotal"`
}

type orderResp struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Status    orders.Status   `json:"status"`
	Total     string          `json:"total"`
	Lines     []orderLineResp `json:"lines"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toOrder(o orders.Order) orderResp {
	lines := make([]orderLineResp, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineResp{
			ProductID:       l.ProductID,
			ProductName:     l.ProductName,
			Quantity:        l.Quantity,
			PriceAtPurchase: money(l.PriceAtPurchase),
			Subtotal:        money(l.Subtotal()),
		})
	}
	return orderResp{ID: o.ID, UserID: o.UserID, Status: o.Status, Total: money(o.Total), Lines: lines, CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt}
}

func toOrders(list []orders.Order) []orderResp {
	out := make([]orderResp, 0, len(list))
	for _, o := range list {
		out = append(out, toOrder(o))
	}
	return out
}

type statusResp struct {
	OrderID   string        `json:"order_id"`
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
	Cached    bool          `json:"cached"`
}

type statsResp struct {
	Revenue string                `json:"revenue"`
	Counts  map[orders.Status]int `json:"counts"`
}
