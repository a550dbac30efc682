package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/sonicjewellers/cartsync/internal/domain"
	"github.com/sonicjewellers/cartsync/internal/service/cart"
)

const maxBodyBytes = 1 << 20

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartsync_http_requests_total",
		Help: "Total number of API requests grouped by route and status code.",
	}, []string{"route", "code"})
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cartsync_http_request_duration_seconds",
		Help:    "Duration of API requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// envelopeHandler — внутренняя форма обработчика: возвращает статус и
// конверт, чтобы ответ можно было кэшировать для idempotency replay.
type envelopeHandler func(r *http.Request, body []byte) (int, Envelope)

// Handler обслуживает REST API движка корзины.
type Handler struct {
	engine      *cart.Engine
	idempotency domain.IdempotencyRepository // опционально
	logger      *log.Entry
}

// NewHandler создаёт API-handler. idempotency может быть nil — тогда
// заголовок Idempotency-Key игнорируется.
func NewHandler(engine *cart.Engine, idempotency domain.IdempotencyRepository, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Handler{
		engine:      engine,
		idempotency: idempotency,
		logger:      logger,
	}
}

// Routes собирает маршруты API.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/cart", h.wrap("cart_list", h.handleList))
	mux.HandleFunc("POST /api/v1/cart/items", h.wrap("cart_add", h.withIdempotency("cart_add", h.handleAdd)))
	mux.HandleFunc("PATCH /api/v1/cart/items/{id}", h.wrap("cart_update", h.handleUpdate))
	mux.HandleFunc("DELETE /api/v1/cart/items/{id}", h.wrap("cart_delete", h.handleDelete))
	mux.HandleFunc("POST /api/v1/cart/clear", h.wrap("cart_clear", h.handleClear))
	return mux
}

// wrap читает тело, вызывает обработчик и пишет конверт, попутно снимая
// метрики запроса.
func (h *Handler) wrap(route string, next envelopeHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeEnvelope(w, h.logger, http.StatusBadRequest, errorEnvelope("failed to read request body"))
			httpRequestsTotal.WithLabelValues(route, strconv.Itoa(http.StatusBadRequest)).Inc()
			return
		}

		status, envelope := next(r, body)
		writeEnvelope(w, h.logger, status, envelope)

		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
	}
}

func (h *Handler) handleList(r *http.Request, _ []byte) (int, Envelope) {
	principal, err := principalFromRequest(r)
	if err != nil {
		return http.StatusBadRequest, errorEnvelope(err.Error())
	}

	page, err := h.engine.ListItems(r.Context(), principal)
	if err != nil {
		return statusForError(err), errorEnvelope(err.Error())
	}
	return http.StatusOK, successEnvelope(page)
}

type addItemRequest struct {
	Product  domain.ProductRef `json:"product"`
	Quantity int               `json:"quantity"`
}

type addItemResponse struct {
	Line    domain.CartLine `json:"line"`
	Outcome cart.AddOutcome `json:"outcome"`
}

func (h *Handler) handleAdd(r *http.Request, body []byte) (int, Envelope) {
	principal, err := principalFromRequest(r)
	if err != nil {
		return http.StatusBadRequest, errorEnvelope(err.Error())
	}

	var req addItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, errorEnvelope("invalid request body")
	}
	if req.Quantity == 0 {
		// Как и мобильный клиент: количество по умолчанию — одна штука.
		req.Quantity = 1
	}

	result, err := h.engine.AddItemFor(r.Context(), principal, req.Product, req.Quantity)
	if err != nil {
		return statusForError(err), errorEnvelope(err.Error())
	}

	status := http.StatusOK
	if result.Outcome == cart.OutcomeCreated {
		status = http.StatusCreated
	}
	return status, successEnvelope(addItemResponse{Line: result.Line, Outcome: result.Outcome})
}

type updateItemRequest struct {
	Quantity *int  `json:"quantity,omitempty"`
	Active   *bool `json:"active,omitempty"`
}

func (h *Handler) handleUpdate(r *http.Request, body []byte) (int, Envelope) {
	id, ok := linePathID(r)
	if !ok {
		return http.StatusBadRequest, errorEnvelope("invalid cart line id")
	}

	var req updateItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, errorEnvelope("invalid request body")
	}

	line, err := h.engine.UpdateItem(r.Context(), id, domain.UpdateParams{
		Quantity: req.Quantity,
		Active:   req.Active,
	})
	if err != nil {
		return statusForError(err), errorEnvelope(err.Error())
	}
	return http.StatusOK, successEnvelope(line)
}

func (h *Handler) handleDelete(r *http.Request, _ []byte) (int, Envelope) {
	id, ok := linePathID(r)
	if !ok {
		return http.StatusBadRequest, errorEnvelope("invalid cart line id")
	}

	if err := h.engine.DeleteItem(r.Context(), id); err != nil {
		return statusForError(err), errorEnvelope(err.Error())
	}
	return http.StatusOK, successEnvelope(map[string]string{"message": "Item removed from cart"})
}

func (h *Handler) handleClear(r *http.Request, _ []byte) (int, Envelope) {
	principal, err := principalFromRequest(r)
	if err != nil {
		return http.StatusBadRequest, errorEnvelope(err.Error())
	}

	if err := h.engine.ClearCart(r.Context(), principal); err != nil {
		return statusForError(err), errorEnvelope(err.Error())
	}
	return http.StatusOK, successEnvelope(map[string]string{"message": "Cart cleared"})
}

func linePathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}
