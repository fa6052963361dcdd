package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Request: один вызов analytics API.
type Request struct {
	Method string
	Path   string // относительно BaseURL: "/analytics"
	Query  url.Values
	Body   []byte // JSON
}

type Response struct {
	Body        []byte
	ContentType string
	Filename    string // из Content-Disposition, для выгрузок
}

// TokenSource выдает Bearer токен для исходящих вызовов. nil, без авторизации.
type TokenSource interface {
	Token() (string, error)
}

// maxBody: предохранитель от неожиданно больших ответов
const maxBody = 32 << 20

type HTTPAdapter struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
}

// NewHTTPAdapter создает транспорт к API. timeout, предел одного вызова.
func NewHTTPAdapter(baseURL string, timeout time.Duration, tokens TokenSource) *HTTPAdapter {
	return &HTTPAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// Call реализует интерфейс engine.ExecutionProvider
func (a *HTTPAdapter) Call(ctx context.Context, req Request) (*Response, error) {
	target := a.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if a.tokens != nil {
		tok, err := a.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("service token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("api call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      &StatusError{Code: resp.StatusCode, Message: errorMessage(data)},
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}

	out := &Response{Body: data, ContentType: resp.Header.Get("Content-Type")}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		out.Filename = params["filename"]
	}
	return out, nil
}

// parseRetryAfter понимает только секунды; иначе секунда по умолчанию.
func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}

// errorMessage достает текст ошибки из тела {"error": "..."}; иначе начало тела.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
