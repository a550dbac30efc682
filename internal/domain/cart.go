package domain

import "time"

// CartLine представляет одну строку корзины: (пользователь, товар, количество, статус).
// Имена wire-полей совпадают с контрактом backend'а (DRF-сериализатор).
type CartLine struct {
	// ID присваивается сервером; до первой успешной записи отсутствует.
	ID int64 `json:"id"`
	// UserID — владелец строки.
	UserID int64 `json:"cart_user"`
	// Username дублируется сервером для отображения, read-only.
	Username string `json:"cart_user_username,omitempty"`
	// Product — ссылка на товар; backend возвращает её в разных формах,
	// поэтому тип нормализует значение при каждом чтении.
	Product ProductRef `json:"cart_product"`
	// Quantity — положительное количество; семантика аддитивная.
	Quantity int `json:"cart_quantity"`
	// Active — флаг статуса; неактивная строка продолжает занимать
	// слот уникальности (user, product) на стороне сервера.
	Active bool `json:"cart_status"`
	// Денормализованные поля товара, заполняются сервером опционально.
	ProductName  string  `json:"cart_product_name,omitempty"`
	ProductPrice float64 `json:"cart_product_price,omitempty"`
	ProductImage string  `json:"cart_product_image,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// CartPage — постраничный конверт списка строк в формате backend'а.
type CartPage struct {
	Count    int        `json:"count"`
	Next     *string    `json:"next"`
	Previous *string    `json:"previous"`
	Results  []CartLine `json:"results"`
}

// EmptyPage возвращает пустую страницу корзины (используется при
// неразрешённом идентификаторе пользователя).
func EmptyPage() CartPage {
	return CartPage{Results: []CartLine{}}
}

// AddParams описывает создание новой строки корзины.
type AddParams struct {
	UserID   int64      `json:"cart_user"`
	Product  ProductRef `json:"cart_product"`
	Quantity int        `json:"cart_quantity"`
	Active   bool       `json:"cart_status"`
}

// Validate проверяет базовые инварианты параметров добавления.
func (p AddParams) Validate() []error {
	var errs []error
	if p.UserID <= 0 {
		errs = append(errs, ErrUserRequired)
	}
	if p.Product.IsZero() {
		errs = append(errs, ErrProductRequired)
	}
	if p.Quantity <= 0 {
		errs = append(errs, ErrQuantityInvalid)
	}
	return errs
}

// UpdateParams описывает частичное обновление строки; nil-поля не отправляются.
type UpdateParams struct {
	Quantity *int  `json:"cart_quantity,omitempty"`
	Active   *bool `json:"cart_status,omitempty"`
}

// IsEmpty сообщает, что обновлять нечего.
func (p UpdateParams) IsEmpty() bool {
	return p.Quantity == nil && p.Active == nil
}

// Principal — объект сессии аутентифицированного пользователя. Форма не
// гарантируется: числовой id может лежать под разными именами полей,
// см. identity.Resolver.
type Principal map[string]any
