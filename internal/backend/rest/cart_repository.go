package rest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sonicjewellers/cartsync/internal/domain"
)

const (
	cartPath      = "/cart"
	cartClearPath = "/cart/clear_cart"
)

// cartRepository реализует domain.CartBackend поверх REST-коллекции
// backend'а магазина.
type cartRepository struct {
	client *Client
}

// NewCartRepository создаёт REST-реализацию CartBackend.
func NewCartRepository(client *Client) domain.CartBackend {
	return &cartRepository{client: client}
}

// ListActive возвращает только активные строки: фильтр user_id на стороне
// сервера сам ограничивает выборку cart_status=true.
func (r *cartRepository) ListActive(ctx context.Context, userID int64) (domain.CartPage, error) {
	query := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
	return r.list(ctx, query)
}

// ListAll возвращает строки в любом статусе через фильтр cart_user.
func (r *cartRepository) ListAll(ctx context.Context, userID int64) (domain.CartPage, error) {
	query := url.Values{"cart_user": {strconv.FormatInt(userID, 10)}}
	return r.list(ctx, query)
}

// ListByProduct — прямой фильтрованный запрос (user, product).
func (r *cartRepository) ListByProduct(ctx context.Context, userID int64, product domain.ProductRef) (domain.CartPage, error) {
	query := url.Values{
		"cart_user":    {strconv.FormatInt(userID, 10)},
		"cart_product": {product.Canonical()},
	}
	return r.list(ctx, query)
}

func (r *cartRepository) list(ctx context.Context, query url.Values) (domain.CartPage, error) {
	var page domain.CartPage
	if err := r.client.Get(ctx, cartPath, query, &page); err != nil {
		return domain.CartPage{}, err
	}
	if page.Results == nil {
		page.Results = []domain.CartLine{}
	}
	return page, nil
}

func (r *cartRepository) Create(ctx context.Context, params domain.AddParams) (domain.CartLine, error) {
	var line domain.CartLine
	if err := r.client.Post(ctx, cartPath, params, &line); err != nil {
		return domain.CartLine{}, err
	}
	return line, nil
}

func (r *cartRepository) Update(ctx context.Context, id int64, params domain.UpdateParams) (domain.CartLine, error) {
	var line domain.CartLine
	if err := r.client.Patch(ctx, linePath(id), params, &line); err != nil {
		return domain.CartLine{}, mapNotFound(err)
	}
	return line, nil
}

func (r *cartRepository) Delete(ctx context.Context, id int64) error {
	if err := r.client.Delete(ctx, linePath(id)); err != nil {
		return mapNotFound(err)
	}
	return nil
}

func (r *cartRepository) Clear(ctx context.Context, userID int64) error {
	body := map[string]int64{"user_id": userID}
	return r.client.Post(ctx, cartClearPath, body, nil)
}

// linePath строит путь ресурса строки; DRF требует закрывающий слеш.
func linePath(id int64) string {
	return fmt.Sprintf("%s/%d/", cartPath, id)
}

func mapNotFound(err error) error {
	if se, ok := err.(*StatusError); ok && se.StatusCode == 404 {
		return fmt.Errorf("%w: %s", domain.ErrLineNotFound, se.Message)
	}
	return err
}

var _ domain.CartBackend = (*cartRepository)(nil)
