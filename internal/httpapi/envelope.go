package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/sonicjewellers/cartsync/internal/domain"
)

// Envelope — единый формат ответа API: либо is_success=true и data, либо
// is_success=false и текст ошибки.
type Envelope struct {
	IsSuccess bool   `json:"is_success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

func successEnvelope(data any) Envelope {
	return Envelope{IsSuccess: true, Data: data}
}

func errorEnvelope(message string) Envelope {
	return Envelope{IsSuccess: false, Error: message}
}

func writeEnvelope(w http.ResponseWriter, logger *log.Entry, status int, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		logger.WithError(err).Warn("failed to encode response envelope")
	}
}

// statusForError отображает ошибки домена на HTTP-статусы. Всё
// неклассифицированное считается отказом backend'а.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotLoggedIn), errors.Is(err, domain.ErrUserUnresolved):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUserRequired),
		errors.Is(err, domain.ErrProductRequired),
		errors.Is(err, domain.ErrQuantityInvalid):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsUniqueViolation(err):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
