package orders

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusShipped: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
}

// Statuses lists every order status in progression order.
func Statuses() []Status {
	return []Status{StatusPending, StatusShipped, StatusDelivered}
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s Status) Cancellable() bool { return s == StatusPending }

// CanTransition allows one forward step, or staying put.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.Valid()
	}
	return validNext[from][to]
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// StatusSnapshot is the cacheable part of an order: enough to answer a status
// poll and to check who may see it.
type StatusSnapshot struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o Order) Snapshot() StatusSnapshot {
	return StatusSnapshot{OrderID: o.ID, UserID: o.UserID, Status: o.Status, UpdatedAt: o.UpdatedAt.UTC()}
}
