package orders

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderCancelled     = "order.cancelled"
	TopicOrderStatusChanged = "order.status.changed"
)

// Partition key = order_id so every event of one order stays in sequence.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
