package domain

import (
	"errors"
	"strings"
)

var (
	// ErrNotLoggedIn — операция с корзиной без активной сессии.
	ErrNotLoggedIn = errors.New("user not logged in")
	// ErrUserUnresolved — числовой id пользователя определить не удалось.
	ErrUserUnresolved = errors.New("user id could not be resolved")
	// Ошибка отсутствующего владельца строки.
	ErrUserRequired = errors.New("cart_user is required")
	// Ошибка отсутствующей ссылки на товар.
	ErrProductRequired = errors.New("cart_product is required")
	// Ошибка неположительного количества.
	ErrQuantityInvalid = errors.New("cart_quantity must be greater than zero")
	// ErrLineNotFound возвращается, если строка корзины не найдена.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrUniqueViolation — backend отклонил insert из-за уже занятого
	// слота (user, product).
	ErrUniqueViolation = errors.New("cart line already exists for this user and product")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки idempotency-слоя.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key is used with different request hash")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// uniqueViolationPatterns — известные формулировки backend'а при нарушении
// ограничения уникальности. Сопоставление по тексту хрупкое, поэтому
// структурные ошибки (ErrUniqueViolation) проверяются первыми.
var uniqueViolationPatterns = []string{
	"must make a unique",
	"unique set",
	"already in your cart",
	"unique",
}

// IsUniqueViolation проверяет, является ли ошибка конфликтом уникальности:
// сперва структурно через errors.Is, затем по известным формулировкам
// сообщений backend'а.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUniqueViolation) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range uniqueViolationPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsNotFound проверяет, что ошибка означает отсутствие строки.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLineNotFound)
}
