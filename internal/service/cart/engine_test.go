package cart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonicjewellers/cartsync/internal/domain"
	"github.com/sonicjewellers/cartsync/internal/identity"
	"github.com/sonicjewellers/cartsync/internal/messaging/kafka"
	"github.com/sonicjewellers/cartsync/internal/storage/memory"
)

// stubBackend оборачивает in-memory драйвер и позволяет подменять
// отдельные вызовы для имитации поведения настоящего backend'а.
type stubBackend struct {
	inner domain.CartBackend

	listActiveFn    func(ctx context.Context, userID int64) (domain.CartPage, error)
	listAllFn       func(ctx context.Context, userID int64) (domain.CartPage, error)
	listByProductFn func(ctx context.Context, userID int64, product domain.ProductRef) (domain.CartPage, error)
	createFn        func(ctx context.Context, params domain.AddParams) (domain.CartLine, error)
	updateFn        func(ctx context.Context, id int64, params domain.UpdateParams) (domain.CartLine, error)

	listAllCalls       int
	listByProductCalls int
	createCalls        int
}

func newStubBackend() *stubBackend {
	return &stubBackend{inner: memory.NewCartRepository()}
}

func (b *stubBackend) ListActive(ctx context.Context, userID int64) (domain.CartPage, error) {
	if b.listActiveFn != nil {
		return b.listActiveFn(ctx, userID)
	}
	return b.inner.ListActive(ctx, userID)
}

func (b *stubBackend) ListAll(ctx context.Context, userID int64) (domain.CartPage, error) {
	b.listAllCalls++
	if b.listAllFn != nil {
		return b.listAllFn(ctx, userID)
	}
	return b.inner.ListAll(ctx, userID)
}

func (b *stubBackend) ListByProduct(ctx context.Context, userID int64, product domain.ProductRef) (domain.CartPage, error) {
	b.listByProductCalls++
	if b.listByProductFn != nil {
		return b.listByProductFn(ctx, userID, product)
	}
	return b.inner.ListByProduct(ctx, userID, product)
}

func (b *stubBackend) Create(ctx context.Context, params domain.AddParams) (domain.CartLine, error) {
	b.createCalls++
	if b.createFn != nil {
		return b.createFn(ctx, params)
	}
	return b.inner.Create(ctx, params)
}

func (b *stubBackend) Update(ctx context.Context, id int64, params domain.UpdateParams) (domain.CartLine, error) {
	if b.updateFn != nil {
		return b.updateFn(ctx, id, params)
	}
	return b.inner.Update(ctx, id, params)
}

func (b *stubBackend) Delete(ctx context.Context, id int64) error {
	return b.inner.Delete(ctx, id)
}

func (b *stubBackend) Clear(ctx context.Context, userID int64) error {
	return b.inner.Clear(ctx, userID)
}

func newTestEngine(backend domain.CartBackend, outbox domain.OutboxRepository) *Engine {
	return NewEngineWithoutMetrics(backend, identity.NewResolver(nil, nil), outbox, nil)
}

func TestAddItem_CreatesNewLine(t *testing.T) {
	backend := newStubBackend()
	engine := newTestEngine(backend, nil)

	result, err := engine.AddItem(context.Background(), 7, domain.NewProductRef("5"), 2)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.Equal(t, 2, result.Line.Quantity)
	assert.True(t, result.Line.Active)
	assert.NotZero(t, result.Line.ID)
}

func TestAddItem_MergesQuantityAdditively(t *testing.T) {
	backend := newStubBackend()
	engine := newTestEngine(backend, nil)
	ctx := context.Background()

	first, err := engine.AddItem(ctx, 7, domain.NewProductRef("5"), 2)
	require.NoError(t, err)

	second, err := engine.AddItem(ctx, 7, domain.NewProductRef("5"), 3)
	require.NoError(t, err)

	assert.Equal(t, OutcomeMerged, second.Outcome)
	assert.Equal(t, first.Line.ID, second.Line.ID, "merge must reuse the existing line")
	assert.Equal(t, 5, second.Line.Quantity)

	page, err := backend.ListAll(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, page.Results, 1, "at most one line per (user, product)")
}

func TestAddItem_ReactivatesInactiveLine(t *testing.T) {
	backend := newStubBackend()
	engine := newTestEngine(backend, nil)
	ctx := context.Background()

	first, err := engine.AddItem(ctx, 7, domain.NewProductRef("5"), 1)
	require.NoError(t, err)

	inactive := false
	_, err = backend.Update(ctx, first.Line.ID, domain.UpdateParams{Active: &inactive})
	require.NoError(t, err)

	result, err := engine.AddItem(ctx, 7, domain.NewProductRef("5"), 2)
	require.NoError(t, err)

	assert.Equal(t, OutcomeMerged, result.Outcome)
	assert.Equal(t, 3, result.Line.Quantity)
	assert.True(t, result.Line.Active, "inactive line must be reactivated")
}

func TestAddItem_NormalizesProductShapes(t *testing.T) {
	backend := newStubBackend()
	engine := newTestEngine(backend, nil)
	ctx := context.Background()

	var embedded domain.ProductRef
	require.NoError(t, json.Unmarshal([]byte(`{"id": 5}`), &embedded))

	_, err := engine.AddItem(ctx, 7, domain.NewProductRef("5"), 1)
	require.NoError(t, err)

	// Тот же товар в форме вложенного объекта должен слиться, а не создать
	// вторую строку.
	result, err := engine.AddItem(ctx, 7, embedded, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, result.Outcome)
	assert.Equal(t, 3, result.Line.Quantity)
}

func TestAddItem_RecoversFromUniqueConflict(t *testing.T) {
	backend := newStubBackend()
	engine := newTestEngine(backend, nil)
	ctx := context.Background()

	// Строка уже есть на сервере, но предварительный список её не видит —
	// имитация запаздывающей реплики чтения.
	seeded, err := backend.inner.Create(ctx, domain.AddParams{
		UserID: 7, Product: domain.NewProductRef("5"), Quantity: 1, Active: true,
	})
	require.NoError(t, err)

	hidden := true
	backend.listAllFn = func(ctx context.Context, userID int64) (domain.CartPage, error) {
		if hidden {
			return domain.CartPage{Results: []domain.CartLine{}}, nil
		}
		return backend.inner.ListAll(ctx, userID)
	}

	result, err := engine.AddItem(ctx, 7, domain.NewProductRef("5"), 3)
	require.NoError(t, err)

	assert.Equal(t, OutcomeRecovered, result.Outcome)
	assert.Equal(t, seeded.ID, result.Line.ID)
	assert.Equal(t, 4, result.Line.Quantity)
	assert.Positive(t, backend.listByProductCalls, "recovery must use the filtered query")
}

func TestAddItem_SurfacesOriginalErrorWhenRecoveryFindsNothing(t *testing.T) {
	backend := newStubBackend()
	engine := newTestEngine(backend, nil)

	createErr := errors.New("the fields cart_user, cart_product, cart_status must make a unique set")
	backend.createFn = func(context.Context, domain.AddParams) (domain.CartLine, error) {
		return domain.CartLine{}, createErr
	}

	// Оба recovery-пути пусты: backend лжёт или строка исчезла между
	// вызовами. Наружу должна уйти именно исходная ошибка create.
	_, err := engine.AddItem(context.Background(), 7, domain.NewProductRef("5"), 1)
	require.Error(t, err)
	assert.Equal(t, createErr, err)
	assert.GreaterOrEqual(t, backend.listAllCalls, 2, "pre-check plus recovery re-list")
	assert.Equal(t, 1, backend.listByProductCalls)
}

func TestAddItem_NonUniqueErrorPassesThrough(t *testing.T) {
	backend := newStubBackend()
	engine := newTestEngine(backend, nil)

	backendDown := errors.New("502 bad gateway")
	backend.createFn = func(context.Context, domain.AddParams) (domain.CartLine, error) {
		return domain.CartLine{}, backendDown
	}

	_, err := engine.AddItem(context.Background(), 7, domain.NewProductRef("5"), 1)
	require.ErrorIs(t, err, backendDown)
	assert.Zero(t, backend.listByProductCalls, "no recovery for non-unique errors")
}

func TestAddItem_PreCheckFailureIsNonFatal(t *testing.T) {
	backend := newStubBackend()
	engine := newTestEngine(backend, nil)

	backend.listAllFn = func(context.Context, int64) (domain.CartPage, error) {
		return domain.CartPage{}, errors.New("list timeout")
	}

	result, err := engine.AddItem(context.Background(), 7, domain.NewProductRef("5"), 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.Equal(t, 1, backend.createCalls)
}

func TestAddItem_ValidatesParams(t *testing.T) {
	engine := newTestEngine(newStubBackend(), nil)
	ctx := context.Background()

	_, err := engine.AddItem(ctx, 7, domain.NewProductRef("5"), 0)
	assert.ErrorIs(t, err, domain.ErrQuantityInvalid)

	_, err = engine.AddItem(ctx, 7, domain.ProductRef{}, 1)
	assert.ErrorIs(t, err, domain.ErrProductRequired)

	_, err = engine.AddItem(ctx, 0, domain.NewProductRef("5"), 1)
	assert.ErrorIs(t, err, domain.ErrUserRequired)
}

func TestAddItemFor_SessionHandling(t *testing.T) {
	engine := newTestEngine(newStubBackend(), nil)
	ctx := context.Background()

	_, err := engine.AddItemFor(ctx, nil, domain.NewProductRef("5"), 1)
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)

	_, err = engine.AddItemFor(ctx, domain.Principal{"role": "guest"}, domain.NewProductRef("5"), 1)
	assert.ErrorIs(t, err, domain.ErrUserUnresolved)

	result, err := engine.AddItemFor(ctx, domain.Principal{"id": float64(7)}, domain.NewProductRef("5"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Line.UserID)
}

func TestListItems_UnresolvedUserGetsEmptyCart(t *testing.T) {
	engine := newTestEngine(newStubBackend(), nil)
	ctx := context.Background()

	_, err := engine.ListItems(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)

	page, err := engine.ListItems(ctx, domain.Principal{"role": "guest"})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.NotNil(t, page.Results)
}

func TestListItems_ReturnsActiveOnly(t *testing.T) {
	backend := newStubBackend()
	engine := newTestEngine(backend, nil)
	ctx := context.Background()

	first, err := engine.AddItem(ctx, 7, domain.NewProductRef("5"), 1)
	require.NoError(t, err)
	_, err = engine.AddItem(ctx, 7, domain.NewProductRef("6"), 1)
	require.NoError(t, err)

	inactive := false
	_, err = backend.Update(ctx, first.Line.ID, domain.UpdateParams{Active: &inactive})
	require.NoError(t, err)

	page, err := engine.ListItems(ctx, domain.Principal{"id": float64(7)})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.True(t, page.Results[0].Product.Equal(domain.NewProductRef("6")))
}

func TestClearCart_RequiresResolvedUser(t *testing.T) {
	backend := newStubBackend()
	engine := newTestEngine(backend, nil)
	ctx := context.Background()

	assert.ErrorIs(t, engine.ClearCart(ctx, nil), domain.ErrNotLoggedIn)
	assert.ErrorIs(t, engine.ClearCart(ctx, domain.Principal{"role": "guest"}), domain.ErrUserUnresolved)

	_, err := engine.AddItem(ctx, 7, domain.NewProductRef("5"), 1)
	require.NoError(t, err)

	require.NoError(t, engine.ClearCart(ctx, domain.Principal{"id": float64(7)}))

	page, err := engine.ListItems(ctx, domain.Principal{"id": float64(7)})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
}

func TestUpdateItem_Validation(t *testing.T) {
	backend := newStubBackend()
	engine := newTestEngine(backend, nil)
	ctx := context.Background()

	_, err := engine.UpdateItem(ctx, 1, domain.UpdateParams{})
	assert.ErrorIs(t, err, domain.ErrQuantityInvalid)

	zero := 0
	_, err = engine.UpdateItem(ctx, 1, domain.UpdateParams{Quantity: &zero})
	assert.ErrorIs(t, err, domain.ErrQuantityInvalid)

	result, addErr := engine.AddItem(ctx, 7, domain.NewProductRef("5"), 1)
	require.NoError(t, addErr)

	five := 5
	line, err := engine.UpdateItem(ctx, result.Line.ID, domain.UpdateParams{Quantity: &five})
	require.NoError(t, err)
	assert.Equal(t, 5, line.Quantity)
}

func TestEngine_EmitsOutboxEvents(t *testing.T) {
	backend := newStubBackend()
	outbox := memory.NewOutboxRepository()
	engine := newTestEngine(backend, outbox)
	ctx := context.Background()

	result, err := engine.AddItem(ctx, 7, domain.NewProductRef("5"), 1)
	require.NoError(t, err)
	_, err = engine.AddItem(ctx, 7, domain.NewProductRef("5"), 2)
	require.NoError(t, err)
	require.NoError(t, engine.DeleteItem(ctx, result.Line.ID))

	pending, err := outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	types := []string{pending[0].EventType, pending[1].EventType, pending[2].EventType}
	assert.Equal(t, []string{
		string(kafka.EventTypeCartAdded),
		string(kafka.EventTypeCartMerged),
		string(kafka.EventTypeCartRemoved),
	}, types)

	var event kafka.CartEvent
	require.NoError(t, json.Unmarshal(pending[0].Payload, &event))
	assert.Equal(t, int64(7), event.UserID)
	assert.Equal(t, "5", event.ProductID)
}

func TestEngine_OutboxFailureDoesNotFailOperation(t *testing.T) {
	backend := newStubBackend()
	engine := NewEngineWithoutMetrics(backend, identity.NewResolver(nil, nil), failingOutbox{}, nil)

	result, err := engine.AddItem(context.Background(), 7, domain.NewProductRef("5"), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, result.Outcome)
}

type failingOutbox struct{}

func (failingOutbox) Enqueue(domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("outbox unavailable")
}
func (failingOutbox) PullPending(int) ([]domain.OutboxMessage, error) { return nil, nil }
func (failingOutbox) Stats() (domain.OutboxStats, error)              { return domain.OutboxStats{}, nil }
func (failingOutbox) MarkSent(string) error                           { return nil }
func (failingOutbox) MarkFailed(string) error                         { return nil }
