package domain

import (
	"context"
	"time"
)

// CartBackend описывает удалённую коллекцию строк корзины. Все реализации
// возвращают ошибки значениями; за границу движка ничего не паникует.
type CartBackend interface {
	// ListActive возвращает только активные строки пользователя.
	ListActive(ctx context.Context, userID int64) (CartPage, error)
	// ListAll возвращает строки пользователя в любом статусе. Нужен
	// движку сверки: ограничение уникальности не привязано к статусу,
	// поэтому неактивные строки тоже занимают слот.
	ListAll(ctx context.Context, userID int64) (CartPage, error)
	// ListByProduct — прямой фильтрованный запрос (user, product),
	// независимый источник истины для recovery-прохода.
	ListByProduct(ctx context.Context, userID int64, product ProductRef) (CartPage, error)
	// Create создаёт строку; может вернуть ошибку нарушения уникальности.
	Create(ctx context.Context, params AddParams) (CartLine, error)
	// Update применяет частичное обновление по известному id.
	Update(ctx context.Context, id int64, params UpdateParams) (CartLine, error)
	// Delete удаляет строку безвозвратно.
	Delete(ctx context.Context, id int64) error
	// Clear очищает корзину пользователя одной операцией.
	Clear(ctx context.Context, userID int64) error
}

// UserDirectory — fallback-поиск пользователя, когда числовой id не
// зашит в объект сессии.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (int64, bool, error)
	FindByUsername(ctx context.Context, username string) (int64, bool, error)
}

// OutboxPublisher публикует события из transactional outbox; должен быть
// идемпотентным.
type OutboxPublisher interface {
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
