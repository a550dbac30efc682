package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sonicjewellers/cartsync/internal/domain"
)

// sessionClaimsHeader несёт base64-кодированный JSON-объект сессии,
// который проставляет вышестоящий шлюз аутентификации.
const sessionClaimsHeader = "X-Session-Claims"

// principalFromRequest извлекает объект сессии из заголовка. Отсутствие
// заголовка — анонимный запрос (nil principal), искажённый заголовок — ошибка.
func principalFromRequest(r *http.Request) (domain.Principal, error) {
	raw := r.Header.Get(sessionClaimsHeader)
	if raw == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		// Шлюзы различаются: часть кодирует без padding.
		decoded, err = base64.RawStdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode session claims: %w", err)
		}
	}

	var principal domain.Principal
	if err := json.Unmarshal(decoded, &principal); err != nil {
		return nil, fmt.Errorf("parse session claims: %w", err)
	}
	return principal, nil
}
