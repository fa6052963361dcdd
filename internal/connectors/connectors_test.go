package connectors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func TestHTTPAdapterSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/export" || r.URL.Query().Get("x") != "1" {
			t.Errorf("unexpected url %s", r.URL)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content-type = %q", got)
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="usage.csv"`)
		w.Write([]byte("a,b\n"))
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL+"/api/", time.Second, staticToken("tok"))
	resp, err := a.Call(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/export",
		Query:  url.Values{"x": {"1"}},
		Body:   []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Filename != "usage.csv" || resp.ContentType != "text/csv" || string(resp.Body) != "a,b\n" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHTTPAdapterErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/throttled":
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/bad":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"bad dateRange"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		}
	}))
	defer srv.Close()
	a := NewHTTPAdapter(srv.URL, time.Second, nil)
	ctx := context.Background()

	_, err := a.Call(ctx, Request{Method: http.MethodGet, Path: "/throttled"})
	var tErr *ThrottleError
	if !errors.As(err, &tErr) || tErr.RetryAfter != 7*time.Second {
		t.Fatalf("want ThrottleError(7s), got %v", err)
	}
	if !Retryable(err) {
		t.Fatal("throttle must be retryable")
	}

	_, err = a.Call(ctx, Request{Method: http.MethodGet, Path: "/bad"})
	var sErr *StatusError
	if !errors.As(err, &sErr) || sErr.Code != 400 || sErr.Message != "bad dateRange" {
		t.Fatalf("want StatusError 400, got %v", err)
	}
	if Retryable(err) {
		t.Fatal("4xx must not be retryable")
	}

	_, err = a.Call(ctx, Request{Method: http.MethodGet, Path: "/down"})
	if !errors.As(err, &sErr) || sErr.Code != 502 || sErr.Message != "upstream down" {
		t.Fatalf("want StatusError 502, got %v", err)
	}
	if !Retryable(err) {
		t.Fatal("5xx must be retryable")
	}
	if got := sErr.Error(); got != "HTTP error! status: 502: upstream down" {
		t.Fatalf("message = %q", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	cases := map[string]time.Duration{"3": 3 * time.Second, " 0 ": 0, "": time.Second, "Wed, 21 Oct": time.Second}
	for in, want := range cases {
		if got := parseRetryAfter(in); got != want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", in, got, want)
		}
	}
}
