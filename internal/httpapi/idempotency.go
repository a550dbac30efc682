package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sonicjewellers/cartsync/internal/domain"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
)

// withIdempotency оборачивает мутирующий обработчик: повтор запроса с тем
// же Idempotency-Key воспроизводит закэшированный ответ вместо повторного
// выполнения. Без заголовка (или без хранилища) запрос идёт напрямую.
func (h *Handler) withIdempotency(route string, next envelopeHandler) envelopeHandler {
	return func(r *http.Request, body []byte) (int, Envelope) {
		if h.idempotency == nil {
			return next(r, body)
		}

		key := r.Header.Get(idempotencyKeyHeader)
		if key == "" {
			return next(r, body)
		}

		requestHash := buildRequestHash(r.Method, route, body)
		record, err := h.idempotency.CreateProcessing(key, requestHash, time.Now().UTC().Add(idempotencyTTL))
		if err != nil {
			return h.replayIdempotency(err, record)
		}

		status, envelope := next(r, body)
		h.cacheIdempotencyResponse(key, status, envelope)
		return status, envelope
	}
}

func (h *Handler) replayIdempotency(createErr error, record domain.IdempotencyRecord) (int, Envelope) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return http.StatusConflict, errorEnvelope("idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			return h.decodeCachedResponse(record)
		case domain.IdempotencyStatusProcessing:
			return http.StatusConflict, errorEnvelope("request with the same idempotency key is already processing")
		default:
			return http.StatusInternalServerError, errorEnvelope("unknown idempotency record status")
		}
	default:
		h.logger.WithError(createErr).Warn("failed to create idempotency record")
		return http.StatusInternalServerError, errorEnvelope("failed to initialize idempotency request")
	}
}

func (h *Handler) decodeCachedResponse(record domain.IdempotencyRecord) (int, Envelope) {
	if len(record.ResponseBody) == 0 {
		return http.StatusInternalServerError, errorEnvelope("idempotency cache is empty")
	}

	var envelope Envelope
	if err := json.Unmarshal(record.ResponseBody, &envelope); err != nil {
		h.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached response")
		return http.StatusInternalServerError, errorEnvelope("failed to decode cached idempotency response")
	}

	status := record.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	return status, envelope
}

func (h *Handler) cacheIdempotencyResponse(key string, status int, envelope Envelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		h.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode response for idempotency cache")
		return
	}

	if envelope.IsSuccess {
		err = h.idempotency.MarkDone(key, payload, status)
	} else {
		err = h.idempotency.MarkFailed(key, payload, status)
	}
	if err != nil {
		h.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency response")
	}
}

func buildRequestHash(method, route string, body []byte) string {
	digest := sha256.New()
	digest.Write([]byte(method))
	digest.Write([]byte{0})
	digest.Write([]byte(route))
	digest.Write([]byte{0})
	digest.Write(body)
	return hex.EncodeToString(digest.Sum(nil))
}
