package identity

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sonicjewellers/cartsync/internal/domain"
)

// idFields — имена полей сессии, под которыми может лежать числовой id
// пользователя. Порядок имеет значение.
var idFields = []string{"id", "user_id", "pk", "userId"}

// emailFields и usernameFields используются для fallback-поиска в
// справочнике пользователей, когда id в сессии отсутствует.
var (
	emailFields    = []string{"email", "userEmail"}
	usernameFields = []string{"username", "userName"}
)

// Resolver извлекает числовой id пользователя из объекта сессии.
// Отсутствие id — не ошибка: вызывающие стороны деградируют мягко
// (например, показывают пустую корзину).
type Resolver struct {
	directory domain.UserDirectory
	logger    *log.Entry
}

// NewResolver создаёт резолвер. directory может быть nil — тогда
// fallback-поиск отключён.
func NewResolver(directory domain.UserDirectory, logger *log.Entry) *Resolver {
	if logger == nil {
		logger = log.WithField("component", "identity")
	}
	return &Resolver{directory: directory, logger: logger}
}

// Resolve возвращает числовой id пользователя и признак успеха.
// Сетевые ошибки fallback-поиска логируются и глотаются: UI корзины не
// должен падать из-за best-effort разрешения идентичности.
func (r *Resolver) Resolve(ctx context.Context, principal domain.Principal) (int64, bool) {
	if len(principal) == 0 {
		return 0, false
	}

	for _, field := range idFields {
		if id, ok := numericID(principal[field]); ok {
			return id, true
		}
	}

	if r.directory == nil {
		return 0, false
	}

	if email := firstString(principal, emailFields); email != "" {
		id, found, err := r.directory.FindByEmail(ctx, email)
		if err != nil {
			r.logger.WithError(err).Warn("user lookup by email failed")
		} else if found {
			return id, true
		}
	}

	if username := firstString(principal, usernameFields); username != "" {
		id, found, err := r.directory.FindByUsername(ctx, username)
		if err != nil {
			r.logger.WithError(err).Warn("user lookup by username failed")
		} else if found {
			return id, true
		}
	}

	return 0, false
}

// numericID приводит значение поля сессии к положительному int64.
// JSON-декодер отдаёт числа как float64, токены бывают и строковыми.
func numericID(v any) (int64, bool) {
	switch value := v.(type) {
	case int64:
		return value, value > 0
	case int:
		return int64(value), value > 0
	case float64:
		if value != float64(int64(value)) {
			return 0, false
		}
		return int64(value), value > 0
	case json.Number:
		id, err := value.Int64()
		return id, err == nil && id > 0
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		return id, err == nil && id > 0
	default:
		return 0, false
	}
}

func firstString(principal domain.Principal, fields []string) string {
	for _, field := range fields {
		if s, ok := principal[field].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
