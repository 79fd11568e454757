package redisx

import "time"

const (
	// Checkout double-submit guard: lock:checkout:{user_id} -> random token
	KeyCheckoutLock = "lock:checkout:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Products under the low-stock threshold, maintained by the inventory monitor.
	KeyLowStock = "inventory:low_stock"
)

var (
	TTLCheckoutLock = 10 * time.Second
	TTLStatusCache  = 5 * time.Minute
	TTLDedup        = 48 * time.Hour
)
