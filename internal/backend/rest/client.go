package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const defaultTimeout = 30 * time.Second

// Client — тонкая обёртка над HTTP-вызовами к backend'у магазина.
// Все сетевые ошибки и не-2xx ответы превращаются в значения ошибок на
// этой границе; наружу ничего не паникует.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	logger  *log.Entry
}

// NewClient создаёт клиент backend'а. token опционален и подставляется
// как Bearer в каждый запрос.
func NewClient(baseURL, token string, timeout time.Duration, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("component", "backend-rest")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   token,
		logger:  logger,
	}
}

// StatusError — ошибка уровня HTTP-ответа с извлечённым из тела сообщением.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return e.Message
}

// Get выполняет GET-запрос и декодирует ответ в out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post выполняет POST-запрос с JSON-телом.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch выполняет частичное обновление.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete удаляет ресурс; тело ответа игнорируется.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Ping проверяет доступность backend'а (для health-чека).
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _, _ = io.Copy(io.Discard, resp.Body); _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"method": method,
			"url":    endpoint,
		}).Warn("backend request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		message := extractErrorMessage(data, fmt.Sprintf("request failed with status %d", resp.StatusCode))
		c.logger.WithFields(log.Fields{
			"method": method,
			"url":    endpoint,
			"status": resp.StatusCode,
			"error":  message,
		}).Warn("backend returned error")
		return &StatusError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// extractErrorMessage достаёт человекочитаемое сообщение из тела ошибки
// DRF: message/error/detail, затем non_field_errors, затем первая ошибка
// поля. Формулировки про unique set переписываются в дружелюбный вид,
// как это делал мобильный клиент.
func extractErrorMessage(body []byte, fallback string) string {
	message := fallback

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err == nil {
		if s := stringField(payload, "message", "error", "detail"); s != "" {
			message = s
		} else if s := firstListItem(payload["non_field_errors"]); s != "" {
			message = s
		} else if s := firstFieldError(payload); s != "" {
			message = s
		}
	}

	if strings.Contains(message, "unique set") || strings.Contains(message, "must make a unique") {
		return "This item is already in your cart"
	}
	return message
}

func stringField(payload map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func firstListItem(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		return items[0]
	}
	return ""
}

// firstFieldError обходит ключи детерминированно, чтобы поведение не
// зависело от порядка map-итерации.
func firstFieldError(payload map[string]json.RawMessage) string {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if s := firstListItem(payload[key]); s != "" {
			return s
		}
	}
	return ""
}
