package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryAudio       Category = "AUDIO"
	CategoryImage       Category = "IMAGE"
	CategorySmartphones Category = "SMARTPHONES"
	CategoryLaptops     Category = "LAPTOPS"
	CategoryGaming      Category = "GAMING"
	CategoryInstruments Category = "INSTRUMENTS"
)

var categories = map[Category]bool{
	CategoryAudio:       true,
	CategoryImage:       true,
	CategorySmartphones: true,
	CategoryLaptops:     true,
	CategoryGaming:      true,
	CategoryInstruments: true,
}

func (c Category) Valid() bool { return categories[c] }

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	Disabled  bool
	CreatedAt time.Time
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    Category
	Deleted     bool // soft delete; never purchasable
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p Product) HasStock(qty int) bool {
	return !p.Deleted && p.Stock >= qty
}

// Reserve takes qty units out of stock. Stock never goes below zero.
func (p *Product) Reserve(qty int) error {
	if p.Deleted {
		return &ProductUnavailableError{ProductID: p.ID, ProductName: p.Name}
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if p.Stock < qty {
		return &InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	return nil
}

// Restore puts qty units back, e.g. when a pending order is cancelled.
func (p *Product) Restore(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	p.Stock += qty
	return nil
}

type CartLine struct {
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Cart holds at most one line per product; lines keep insertion order.
type Cart struct {
	ID        string
	UserID    string
	Lines     []CartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Cart) Line(productID string) (CartLine, bool) {
	if i := c.index(productID); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

// SetLine replaces the quantity of an existing line or appends a new one.
func (c *Cart) SetLine(productID string, qty int, at time.Time) {
	if i := c.index(productID); i >= 0 {
		c.Lines[i].Quantity = qty
		return
	}
	c.Lines = append(c.Lines, CartLine{ProductID: productID, Quantity: qty, AddedAt: at})
}

func (c *Cart) RemoveLine(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return true
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool { return len(c.Lines) == 0 }

func (c *Cart) index(productID string) int {
	for i, l := range c.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// OrderLine carries the price frozen at checkout.
type OrderLine struct {
	ProductID       string
	ProductName     string
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID        string
	UserID    string
	Status    Status
	Total     decimal.Decimal
	Lines     []OrderLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Order) CalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
