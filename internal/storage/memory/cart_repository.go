package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sonicjewellers/cartsync/internal/domain"
)

// cartRepositoryInMemory — in-memory реализация CartBackend для локальной
// разработки и тестов. Воспроизводит контракт backend'а, включая
// ограничение уникальности (user, product) вне зависимости от статуса.
type cartRepositoryInMemory struct {
	mu     sync.RWMutex
	lines  map[int64]domain.CartLine
	nextID int64
}

// NewCartRepository возвращает in-memory реализацию CartBackend.
func NewCartRepository() domain.CartBackend {
	return &cartRepositoryInMemory{
		lines:  make(map[int64]domain.CartLine),
		nextID: 1,
	}
}

// ListActive возвращает только активные строки пользователя.
func (r *cartRepositoryInMemory) ListActive(_ context.Context, userID int64) (domain.CartPage, error) {
	return r.listFiltered(func(line domain.CartLine) bool {
		return line.UserID == userID && line.Active
	}), nil
}

// ListAll возвращает строки пользователя в любом статусе.
func (r *cartRepositoryInMemory) ListAll(_ context.Context, userID int64) (domain.CartPage, error) {
	return r.listFiltered(func(line domain.CartLine) bool {
		return line.UserID == userID
	}), nil
}

// ListByProduct — фильтрованная выборка по паре (user, product).
func (r *cartRepositoryInMemory) ListByProduct(_ context.Context, userID int64, product domain.ProductRef) (domain.CartPage, error) {
	return r.listFiltered(func(line domain.CartLine) bool {
		return line.UserID == userID && line.Product.Equal(product)
	}), nil
}

func (r *cartRepositoryInMemory) listFiltered(keep func(domain.CartLine) bool) domain.CartPage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.CartLine, 0, len(r.lines))
	for _, line := range r.lines {
		if keep(line) {
			result = append(result, line)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return domain.CartPage{Count: len(result), Results: result}
}

// Create сохраняет новую строку. Слот (user, product) должен быть свободен:
// неактивные строки тоже занимают его, как и на стороне настоящего backend'а.
func (r *cartRepositoryInMemory) Create(_ context.Context, params domain.AddParams) (domain.CartLine, error) {
	if errs := params.Validate(); len(errs) > 0 {
		return domain.CartLine{}, errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, line := range r.lines {
		if line.UserID == params.UserID && line.Product.Equal(params.Product) {
			return domain.CartLine{}, fmt.Errorf(
				"%w: the fields cart_user, cart_product, cart_status must make a unique set",
				domain.ErrUniqueViolation,
			)
		}
	}

	now := time.Now().UTC()
	line := domain.CartLine{
		ID:        r.nextID,
		UserID:    params.UserID,
		Product:   params.Product,
		Quantity:  params.Quantity,
		Active:    params.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.nextID++
	r.lines[line.ID] = line
	return line, nil
}

// Update применяет частичное обновление по id.
func (r *cartRepositoryInMemory) Update(_ context.Context, id int64, params domain.UpdateParams) (domain.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line, ok := r.lines[id]
	if !ok {
		return domain.CartLine{}, domain.ErrLineNotFound
	}

	if params.Quantity != nil {
		if *params.Quantity <= 0 {
			return domain.CartLine{}, domain.ErrQuantityInvalid
		}
		line.Quantity = *params.Quantity
	}
	if params.Active != nil {
		line.Active = *params.Active
	}
	line.UpdatedAt = time.Now().UTC()
	r.lines[id] = line
	return line, nil
}

// Delete удаляет строку безвозвратно, освобождая слот уникальности.
func (r *cartRepositoryInMemory) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lines[id]; !ok {
		return domain.ErrLineNotFound
	}
	delete(r.lines, id)
	return nil
}

// Clear деактивирует активные строки пользователя. Строки остаются на
// месте и продолжают занимать слот уникальности.
func (r *cartRepositoryInMemory) Clear(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for id, line := range r.lines {
		if line.UserID != userID || !line.Active {
			continue
		}
		line.Active = false
		line.UpdatedAt = now
		r.lines[id] = line
	}
	return nil
}

var _ domain.CartBackend = (*cartRepositoryInMemory)(nil)
