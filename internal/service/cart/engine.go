package cart

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sonicjewellers/cartsync/internal/domain"
	"github.com/sonicjewellers/cartsync/internal/identity"
	"github.com/sonicjewellers/cartsync/internal/messaging/kafka"
	"github.com/sonicjewellers/cartsync/internal/metrics"
)

// AddOutcome описывает, каким путём добавление пришло к успеху.
type AddOutcome string

const (
	// OutcomeCreated — создана новая строка корзины.
	OutcomeCreated AddOutcome = "created"
	// OutcomeMerged — количество слито в существующую строку, найденную
	// предварительным списком.
	OutcomeMerged AddOutcome = "merged"
	// OutcomeRecovered — backend отклонил insert по уникальности, строка
	// найдена повторным чтением и обновлена.
	OutcomeRecovered AddOutcome = "recovered"
)

// AddResult — итог операции добавления.
type AddResult struct {
	Line    domain.CartLine
	Outcome AddOutcome
}

// Engine выполняет сверку корзины: гарантирует не больше одной строки на
// пару (пользователь, товар) и восстанавливается после конфликтов
// уникальности на стороне backend'а.
type Engine struct {
	backend  domain.CartBackend
	identity *identity.Resolver
	outbox   domain.OutboxRepository // опциональный transactional outbox
	logger   *log.Entry
	metrics  *metrics.CartMetrics
}

// NewEngine создаёт рабочий экземпляр движка. outbox может быть nil —
// тогда события корзины не публикуются.
func NewEngine(
	backend domain.CartBackend,
	resolver *identity.Resolver,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Engine {
	if logger == nil {
		logger = log.New().WithField("component", "cart-engine")
	}
	return &Engine{
		backend:  backend,
		identity: resolver,
		outbox:   outbox,
		logger:   logger,
		metrics:  metrics.NewCartMetrics(),
	}
}

// NewEngineWithoutMetrics создаёт движок без Prometheus-метрик (для тестов).
func NewEngineWithoutMetrics(
	backend domain.CartBackend,
	resolver *identity.Resolver,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Engine {
	engine := NewEngine(backend, resolver, outbox, logger)
	engine.metrics = nil
	return engine
}

// AddItemFor добавляет товар от имени объекта сессии: без сессии операция
// отклоняется, неразрешимый id пользователя — жёсткая ошибка.
func (e *Engine) AddItemFor(ctx context.Context, principal domain.Principal, product domain.ProductRef, quantity int) (AddResult, error) {
	if len(principal) == 0 {
		return AddResult{}, domain.ErrNotLoggedIn
	}
	userID, ok := e.identity.Resolve(ctx, principal)
	if !ok {
		return AddResult{}, domain.ErrUserUnresolved
	}
	return e.AddItem(ctx, userID, product, quantity)
}

// AddItem добавляет товар в корзину пользователя. Семантика аддитивная:
// повторное добавление сливается с существующей строкой, неактивная
// строка реактивируется. Конфликт уникальности от backend'а не считается
// ошибкой, пока строку удаётся найти повторным чтением.
func (e *Engine) AddItem(ctx context.Context, userID int64, product domain.ProductRef, quantity int) (AddResult, error) {
	params := domain.AddParams{
		UserID:   userID,
		Product:  product,
		Quantity: quantity,
		Active:   true,
	}
	if errs := params.Validate(); len(errs) > 0 {
		return AddResult{}, errs[0]
	}

	if e.metrics != nil {
		e.metrics.RecordAddAttempt()
		started := time.Now()
		defer func() {
			e.metrics.RecordAddFinished()
			e.metrics.RecordAddDuration(time.Since(started))
		}()
	}

	logger := e.logger.WithFields(log.Fields{
		"user_id": userID,
		"product": product.Canonical(),
	})

	// Предварительный список — best effort: его отказ не блокирует
	// добавление, просто пропускаем fast path слияния.
	if existing, ok := e.findExisting(ctx, userID, product, logger); ok {
		line, err := e.mergeInto(ctx, existing, quantity)
		if err != nil {
			e.recordFailure()
			return AddResult{}, err
		}
		e.recordMerged()
		e.emitEvent(kafka.EventTypeCartMerged, line)
		return AddResult{Line: line, Outcome: OutcomeMerged}, nil
	}

	line, createErr := e.createLine(ctx, params)
	if createErr == nil {
		if e.metrics != nil {
			e.metrics.RecordAddCreated()
		}
		e.emitEvent(kafka.EventTypeCartAdded, line)
		return AddResult{Line: line, Outcome: OutcomeCreated}, nil
	}

	if !domain.IsUniqueViolation(createErr) {
		e.recordFailure()
		return AddResult{}, createErr
	}

	// Backend настаивает, что строка уже есть, хотя список её не показал.
	// Ищем её повторно по двум независимым путям; исходная ошибка create
	// всплывает только если строку так и не удалось найти.
	logger.WithError(createErr).Info("create rejected as duplicate, recovering")
	if found, ok := e.recoverConflict(ctx, userID, product, logger); ok {
		line, err := e.mergeInto(ctx, found, quantity)
		if err != nil {
			e.recordFailure()
			return AddResult{}, err
		}
		if e.metrics != nil {
			e.metrics.RecordConflictRecovered()
		}
		e.emitEvent(kafka.EventTypeCartConflictRecovered, line)
		return AddResult{Line: line, Outcome: OutcomeRecovered}, nil
	}

	e.recordFailure()
	return AddResult{}, createErr
}

// ListItems возвращает активные строки корзины. Без сессии — ошибка;
// сессия без разрешимого id — пустая корзина, не сбой.
func (e *Engine) ListItems(ctx context.Context, principal domain.Principal) (domain.CartPage, error) {
	if len(principal) == 0 {
		return domain.CartPage{}, domain.ErrNotLoggedIn
	}
	userID, ok := e.identity.Resolve(ctx, principal)
	if !ok {
		return domain.EmptyPage(), nil
	}

	page, err := e.timedBackendCall(ctx, "list_active", func(ctx context.Context) (domain.CartPage, error) {
		return e.backend.ListActive(ctx, userID)
	})
	if err != nil {
		return domain.CartPage{}, err
	}
	return page, nil
}

// UpdateItem применяет частичное обновление строки по её id.
func (e *Engine) UpdateItem(ctx context.Context, id int64, params domain.UpdateParams) (domain.CartLine, error) {
	if params.IsEmpty() {
		return domain.CartLine{}, domain.ErrQuantityInvalid
	}
	if params.Quantity != nil && *params.Quantity <= 0 {
		return domain.CartLine{}, domain.ErrQuantityInvalid
	}

	started := time.Now()
	line, err := e.backend.Update(ctx, id, params)
	e.recordBackendCall("update", started)
	if err != nil {
		return domain.CartLine{}, err
	}
	e.emitEvent(kafka.EventTypeCartUpdated, line)
	return line, nil
}

// DeleteItem удаляет строку по id, освобождая слот уникальности.
func (e *Engine) DeleteItem(ctx context.Context, id int64) error {
	started := time.Now()
	err := e.backend.Delete(ctx, id)
	e.recordBackendCall("delete", started)
	if err != nil {
		return err
	}
	e.emitEvent(kafka.EventTypeCartRemoved, domain.CartLine{ID: id})
	return nil
}

// ClearCart очищает корзину пользователя сессии. В отличие от чтения,
// неразрешимый id здесь — жёсткая ошибка: молча «очистить ничью корзину»
// опаснее, чем отказать.
func (e *Engine) ClearCart(ctx context.Context, principal domain.Principal) error {
	if len(principal) == 0 {
		return domain.ErrNotLoggedIn
	}
	userID, ok := e.identity.Resolve(ctx, principal)
	if !ok {
		return domain.ErrUserUnresolved
	}

	started := time.Now()
	err := e.backend.Clear(ctx, userID)
	e.recordBackendCall("clear", started)
	if err != nil {
		return err
	}
	e.emitEvent(kafka.EventTypeCartCleared, domain.CartLine{UserID: userID})
	return nil
}

// findExisting ищет строку (user, product) предварительным списком всех
// строк пользователя, включая неактивные.
func (e *Engine) findExisting(ctx context.Context, userID int64, product domain.ProductRef, logger *log.Entry) (domain.CartLine, bool) {
	page, err := e.timedBackendCall(ctx, "list_all", func(ctx context.Context) (domain.CartPage, error) {
		return e.backend.ListAll(ctx, userID)
	})
	if err != nil {
		logger.WithError(err).Warn("pre-check list failed, proceeding to create")
		return domain.CartLine{}, false
	}
	return matchProduct(page.Results, product)
}

// recoverConflict пытается найти строку, о которой заявил backend:
// сначала повторным полным списком, затем независимым фильтрованным
// запросом. Ошибки обоих путей глотаются — наружу уйдёт исходная ошибка create.
func (e *Engine) recoverConflict(ctx context.Context, userID int64, product domain.ProductRef, logger *log.Entry) (domain.CartLine, bool) {
	page, err := e.timedBackendCall(ctx, "list_all", func(ctx context.Context) (domain.CartPage, error) {
		return e.backend.ListAll(ctx, userID)
	})
	if err != nil {
		logger.WithError(err).Warn("recovery re-list failed")
	} else if line, ok := matchProduct(page.Results, product); ok {
		return line, true
	}

	page, err = e.timedBackendCall(ctx, "list_by_product", func(ctx context.Context) (domain.CartPage, error) {
		return e.backend.ListByProduct(ctx, userID, product)
	})
	if err != nil {
		logger.WithError(err).Warn("recovery filtered query failed")
		return domain.CartLine{}, false
	}
	return matchProduct(page.Results, product)
}

// mergeInto прибавляет количество к строке, которую вернул сервер, и
// реактивирует её.
func (e *Engine) mergeInto(ctx context.Context, existing domain.CartLine, quantity int) (domain.CartLine, error) {
	newQuantity := existing.Quantity + quantity
	active := true

	started := time.Now()
	line, err := e.backend.Update(ctx, existing.ID, domain.UpdateParams{
		Quantity: &newQuantity,
		Active:   &active,
	})
	e.recordBackendCall("update", started)
	return line, err
}

func (e *Engine) createLine(ctx context.Context, params domain.AddParams) (domain.CartLine, error) {
	started := time.Now()
	line, err := e.backend.Create(ctx, params)
	e.recordBackendCall("create", started)
	return line, err
}

// emitEvent кладёт событие корзины в outbox. Отказ outbox логируется и не
// влияет на исход операции.
func (e *Engine) emitEvent(eventType kafka.EventType, line domain.CartLine) {
	if e.outbox == nil {
		return
	}

	event := kafka.NewCartEvent(eventType, line.UserID, line.Product.Canonical(), line.ID, line.Quantity)
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.WithError(err).Error("marshal cart event")
		return
	}

	if _, err := e.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "cart",
		AggregateID:   strconv.FormatInt(line.UserID, 10),
		EventType:     string(eventType),
		Payload:       payload,
	}); err != nil {
		e.logger.WithError(err).Error("enqueue cart event")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordOutboxEvent()
	}
}

func (e *Engine) timedBackendCall(ctx context.Context, call string, fn func(context.Context) (domain.CartPage, error)) (domain.CartPage, error) {
	started := time.Now()
	page, err := fn(ctx)
	e.recordBackendCall(call, started)
	return page, err
}

func (e *Engine) recordBackendCall(call string, started time.Time) {
	if e.metrics != nil {
		e.metrics.RecordBackendCall(call, time.Since(started))
	}
}

func (e *Engine) recordMerged() {
	if e.metrics != nil {
		e.metrics.RecordAddMerged()
	}
}

func (e *Engine) recordFailure() {
	if e.metrics != nil {
		e.metrics.RecordAddFailed()
	}
}

func matchProduct(lines []domain.CartLine, product domain.ProductRef) (domain.CartLine, bool) {
	for _, line := range lines {
		if line.Product.Equal(product) {
			return line, true
		}
	}
	return domain.CartLine{}, false
}
