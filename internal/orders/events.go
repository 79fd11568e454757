package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, orderID string, at time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       raw,
	}, nil
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ItemPrice struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	Price     string `json:"price"`
}

type OrderPlacedPayload struct {
	OrderID string      `json:"order_id"`
	UserID  string      `json:"user_id"`
	Items   []ItemPrice `json:"items"`
	Total   string      `json:"total"`
}

type OrderCancelledPayload struct {
	OrderID  string    `json:"order_id"`
	UserID   string    `json:"user_id"`
	Restored []ItemQty `json:"restored"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

func PlacedPayload(o Order) OrderPlacedPayload {
	items := make([]ItemPrice, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, ItemPrice{ProductID: l.ProductID, Qty: l.Quantity, Price: l.PriceAtPurchase.StringFixed(2)})
	}
	return OrderPlacedPayload{OrderID: o.ID, UserID: o.UserID, Items: items, Total: o.Total.StringFixed(2)}
}

func CancelledPayload(o Order) OrderCancelledPayload {
	items := make([]ItemQty, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, ItemQty{ProductID: l.ProductID, Qty: l.Quantity})
	}
	return OrderCancelledPayload{OrderID: o.ID, UserID: o.UserID, Restored: items}
}
