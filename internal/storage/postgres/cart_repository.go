package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sonicjewellers/cartsync/internal/domain"
)

const opTimeout = 5 * time.Second

const cartLineColumns = `id, cart_user, cart_product, cart_quantity, cart_status, created_at, updated_at`

// cartRepository — PostgreSQL-реализация CartBackend. Ограничение
// уникальности (cart_user, cart_product) живёт в схеме, поэтому гонка
// двух параллельных insert'ов разрешается самой базой.
type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartBackend.
func NewCartRepository(store *Store) domain.CartBackend {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) ListActive(ctx context.Context, userID int64) (domain.CartPage, error) {
	return r.list(ctx, `
		SELECT `+cartLineColumns+`
		FROM cart_lines
		WHERE cart_user = $1 AND cart_status
		ORDER BY created_at DESC, id DESC
	`, userID)
}

func (r *cartRepository) ListAll(ctx context.Context, userID int64) (domain.CartPage, error) {
	return r.list(ctx, `
		SELECT `+cartLineColumns+`
		FROM cart_lines
		WHERE cart_user = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
}

func (r *cartRepository) ListByProduct(ctx context.Context, userID int64, product domain.ProductRef) (domain.CartPage, error) {
	return r.list(ctx, `
		SELECT `+cartLineColumns+`
		FROM cart_lines
		WHERE cart_user = $1 AND cart_product = $2
		ORDER BY created_at DESC, id DESC
	`, userID, product.Canonical())
}

func (r *cartRepository) list(ctx context.Context, query string, args ...any) (domain.CartPage, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(queryCtx, query, args...)
	if err != nil {
		return domain.CartPage{}, fmt.Errorf("list cart lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return domain.CartPage{}, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.CartPage{}, fmt.Errorf("iterate cart lines: %w", err)
	}

	return domain.CartPage{Count: len(lines), Results: lines}, nil
}

func (r *cartRepository) Create(ctx context.Context, params domain.AddParams) (domain.CartLine, error) {
	if errs := params.Validate(); len(errs) > 0 {
		return domain.CartLine{}, errs[0]
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(queryCtx, `
		INSERT INTO cart_lines (cart_user, cart_product, cart_quantity, cart_status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+cartLineColumns+`
	`, params.UserID, params.Product.Canonical(), params.Quantity, params.Active)

	line, err := scanCartLine(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CartLine{}, fmt.Errorf(
				"%w: the fields cart_user, cart_product, cart_status must make a unique set",
				domain.ErrUniqueViolation,
			)
		}
		return domain.CartLine{}, fmt.Errorf("insert cart line: %w", err)
	}
	return line, nil
}

func (r *cartRepository) Update(ctx context.Context, id int64, params domain.UpdateParams) (domain.CartLine, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// nil-поля превращаются в SQL NULL и сохраняют текущее значение.
	row := r.db.QueryRowContext(queryCtx, `
		UPDATE cart_lines
		SET cart_quantity = COALESCE($2, cart_quantity),
		    cart_status = COALESCE($3, cart_status),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+cartLineColumns+`
	`, id, params.Quantity, params.Active)

	line, err := scanCartLine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartLine{}, domain.ErrLineNotFound
		}
		return domain.CartLine{}, fmt.Errorf("update cart line: %w", err)
	}
	return line, nil
}

func (r *cartRepository) Delete(ctx context.Context, id int64) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(queryCtx, `DELETE FROM cart_lines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrLineNotFound
	}
	return nil
}

// Clear деактивирует активные строки пользователя; физически строки
// остаются и продолжают занимать слот уникальности.
func (r *cartRepository) Clear(ctx context.Context, userID int64) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(queryCtx, `
		UPDATE cart_lines
		SET cart_status = FALSE, updated_at = NOW()
		WHERE cart_user = $1 AND cart_status
	`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCartLine(row rowScanner) (domain.CartLine, error) {
	var (
		line    domain.CartLine
		product string
	)
	if err := row.Scan(
		&line.ID, &line.UserID, &product, &line.Quantity,
		&line.Active, &line.CreatedAt, &line.UpdatedAt,
	); err != nil {
		return domain.CartLine{}, err
	}
	line.Product = domain.NewProductRef(product)
	return line, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.CartBackend = (*cartRepository)(nil)
