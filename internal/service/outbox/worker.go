package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/sonicjewellers/cartsync/internal/domain"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	cartEventPublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartsync_outbox_publish_attempts_total",
		Help: "Total number of cart event publish attempts grouped by result.",
	}, []string{"result"})
	cartEventBacklogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cartsync_outbox_pending_records",
		Help: "Current number of cart events waiting in the outbox.",
	})
	cartEventBacklogAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cartsync_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest cart event waiting in the outbox.",
	})
)

// Worker выгребает события корзины из outbox и публикует их в брокер.
// Повторное добавление одного товара порождает события с одним aggregate id,
// поэтому порядок внутри батча сохраняется как есть (FIFO репозитория).
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlqPublisher   domain.OutboxPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// Option настраивает Worker при создании.
type Option func(*Worker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher задаёт publisher для событий, не ушедших после всех retry.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlqPublisher = publisher }
}

// WithPollInterval задаёт период опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт максимум событий за один цикл.
func WithBatchSize(batchSize int) Option {
	return func(w *Worker) {
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации до failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(w *Worker) {
		if maxAttempts > 0 {
			w.maxAttempts = maxAttempts
		}
	}
}

// WithRetryBaseDelay задаёт базу exponential backoff между попытками.
// Ноль выключает паузы (используется в тестах).
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		if delay >= 0 {
			w.retryBaseDelay = delay
		}
	}
}

// NewWorker создаёт воркер публикации событий корзины.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "outbox-worker"),
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run крутит polling-цикл до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один цикл: снимает метрики backlog'а, забирает
// батч и проталкивает каждое событие.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.observeBacklog()

	batch, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending cart events")
		return
	}

	for _, event := range batch {
		if ctx.Err() != nil {
			return
		}
		w.drain(ctx, event)
	}

	if len(batch) > 0 {
		w.observeBacklog()
	}
}

// drain публикует одно событие с retry и разруливает исход: sent,
// либо failed + копия в DLQ.
func (w *Worker) drain(ctx context.Context, event domain.OutboxMessage) {
	logger := w.logger.WithFields(log.Fields{
		"outbox_id":  event.ID,
		"event_type": event.EventType,
		"cart_user":  event.AggregateID,
	})

	attempts, err := w.publishWithRetry(ctx, event)
	if err != nil {
		logger.WithError(err).Error("cart event publish failed after retries")
		cartEventPublishAttempts.WithLabelValues("failed").Inc()

		if dlqErr := w.deadLetter(event, err, attempts); dlqErr != nil {
			logger.WithError(dlqErr).Warn("failed to publish cart event to DLQ")
			cartEventPublishAttempts.WithLabelValues("dlq_failed").Inc()
		}
		if markErr := w.repo.MarkFailed(event.ID); markErr != nil {
			logger.WithError(markErr).Warn("failed to mark cart event as failed")
		}
		return
	}

	if err := w.repo.MarkSent(event.ID); err != nil {
		logger.WithError(err).Warn("failed to mark cart event as sent")
	}
}

// publishWithRetry возвращает число сделанных попыток вместе с итогом —
// оно уходит в DLQ-метаданные.
func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.publisher.Publish(event)
		if err == nil {
			cartEventPublishAttempts.WithLabelValues("sent").Inc()
			return attempt, nil
		}
		lastErr = err
		cartEventPublishAttempts.WithLabelValues("retry_error").Inc()

		if attempt == w.maxAttempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return attempt, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return w.maxAttempts, fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

// backoff удваивает базовый delay на каждую следующую попытку.
func (w *Worker) backoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}

	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > time.Hour {
			// Дальше удваивать бессмысленно, да и переполнение близко.
			return time.Hour
		}
		delay *= 2
	}
	return delay
}

// deadLetter оборачивает событие в конверт с причиной отказа и контекстом
// корзины и отправляет в DLQ-топик. Без DLQ-паблишера событие просто
// остаётся failed в outbox.
func (w *Worker) deadLetter(event domain.OutboxMessage, publishErr error, attempts int) error {
	if w.dlqPublisher == nil {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"outbox_id":        event.ID,
		"aggregate_type":   event.AggregateType,
		"cart_user":        event.AggregateID,
		"event_type":       event.EventType,
		"event":            json.RawMessage(event.Payload),
		"publish_error":    publishErr.Error(),
		"publish_attempts": strconv.Itoa(attempts),
		"dlq_published_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dead := event
	dead.Payload = payload
	if err := w.dlqPublisher.Publish(dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) observeBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	cartEventBacklogSize.Set(float64(stats.PendingCount))

	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		if since := time.Since(stats.OldestPendingAt).Seconds(); since > 0 {
			age = since
		}
	}
	cartEventBacklogAge.Set(age)
}
