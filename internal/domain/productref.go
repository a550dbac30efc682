package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ProductRef — полиморфная ссылка на товар. Backend непоследователен:
// в одних ответах это голый id ("7" или 7), в других — вложенный объект
// {"id": 7, ...}. Все сравнения идут через каноническую строковую форму,
// сырые поля никогда не сравниваются напрямую.
type ProductRef struct {
	id string
}

// NewProductRef создаёт ссылку из строкового идентификатора.
func NewProductRef(id string) ProductRef {
	return ProductRef{id: canonicalID(id)}
}

// ProductRefFromInt создаёт ссылку из числового идентификатора.
func ProductRefFromInt(id int64) ProductRef {
	return ProductRef{id: strconv.FormatInt(id, 10)}
}

// Canonical возвращает каноническую строковую форму идентификатора.
func (r ProductRef) Canonical() string {
	return r.id
}

// IsZero сообщает, что ссылка пуста.
func (r ProductRef) IsZero() bool {
	return r.id == ""
}

// Equal сравнивает две ссылки в канонической форме.
func (r ProductRef) Equal(other ProductRef) bool {
	return r.id != "" && r.id == other.id
}

func (r ProductRef) String() string {
	return r.id
}

// MarshalJSON сериализует ссылку как строку — так её ожидает backend
// при создании строки корзины.
func (r ProductRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.id)
}

// UnmarshalJSON принимает любую из форм: "7", 7, {"id": 7} или {"id": "7"}.
func (r *ProductRef) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		r.id = ""
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode product ref string: %w", err)
		}
		r.id = canonicalID(s)
		return nil
	case '{':
		var embedded struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(data, &embedded); err != nil {
			return fmt.Errorf("decode embedded product ref: %w", err)
		}
		if len(embedded.ID) == 0 {
			r.id = ""
			return nil
		}
		return r.UnmarshalJSON(embedded.ID)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decode product ref number: %w", err)
		}
		r.id = canonicalNumber(n)
		return nil
	}
}

// canonicalID приводит строковую форму к каноническому виду: обрезает
// пробелы и убирает незначащую дробную часть ("7.0" -> "7").
func canonicalID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return canonicalFloat(f)
	}
	return s
}

func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil {
		return canonicalFloat(f)
	}
	return canonicalID(n.String())
}

func canonicalFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
