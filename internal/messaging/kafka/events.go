package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// События корзины
	EventTypeCartAdded             EventType = "cart.added"
	EventTypeCartMerged            EventType = "cart.merged"
	EventTypeCartConflictRecovered EventType = "cart.conflict_recovered"
	EventTypeCartUpdated           EventType = "cart.updated"
	EventTypeCartRemoved           EventType = "cart.removed"
	EventTypeCartCleared           EventType = "cart.cleared"
)

// Topics для Kafka
const (
	TopicCartEvents      = "cartsync.cart.events"
	TopicDeadLetterQueue = "cartsync.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// CartEvent представляет событие корзины
type CartEvent struct {
	EventType EventType              `json:"event_type"`
	UserID    int64                  `json:"user_id"`
	ProductID string                 `json:"product_id,omitempty"`
	LineID    int64                  `json:"line_id,omitempty"`
	Quantity  int                    `json:"quantity,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewCartEvent создает новое событие корзины
func NewCartEvent(eventType EventType, userID int64, productID string, lineID int64, quantity int) *CartEvent {
	return &CartEvent{
		EventType: eventType,
		UserID:    userID,
		ProductID: productID,
		LineID:    lineID,
		Quantity:  quantity,
		Timestamp: time.Now(),
	}
}
