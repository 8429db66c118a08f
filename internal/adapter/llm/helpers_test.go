package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"conductor/internal/domain"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusForbidden, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusInternalServerError, domain.ErrServerFailure},
		{http.StatusBadGateway, domain.ErrServerFailure},
		{http.StatusServiceUnavailable, domain.ErrServerFailure},
		{http.StatusTeapot, domain.ErrProviderError},
	}
	for _, tt := range tests {
		err := mapHTTPError(tt.status, []byte(`{"error":"x"}`))
		if !errors.Is(err, tt.want) {
			t.Errorf("mapHTTPError(%d) = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestMapHTTPErrorRetryable(t *testing.T) {
	if !domain.IsRetryableError(mapHTTPError(http.StatusBadGateway, nil)) {
		t.Error("5xx should be retryable")
	}
	if domain.IsRetryableError(mapHTTPError(http.StatusUnauthorized, nil)) {
		t.Error("401 should not be retryable")
	}
}

func TestMapHTTPErrorIncludesBody(t *testing.T) {
	err := mapHTTPError(http.StatusTooManyRequests, []byte(`{"error":{"message":"slow down"}}`))
	if !strings.Contains(err.Error(), "API error 429") || !strings.Contains(err.Error(), "slow down") {
		t.Errorf("error message = %q", err.Error())
	}
}

func TestDoJSONRequestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := doJSONRequest(context.Background(), http.DefaultClient, http.MethodGet, url, nil, nil)
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestDoJSONRequestSetsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Test") != "yes" {
			t.Errorf("X-Test = %q", r.Header.Get("X-Test"))
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	body, err := doJSONRequest(context.Background(), srv.Client(), http.MethodPost, srv.URL, []byte(`{}`), map[string]string{"X-Test": "yes"})
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
}

func TestDefaultModel(t *testing.T) {
	if got := defaultModel(domain.ChatRequest{}, "m1").Model; got != "m1" {
		t.Errorf("Model = %q", got)
	}
	if got := defaultModel(domain.ChatRequest{Model: "m2"}, "m1").Model; got != "m2" {
		t.Errorf("Model = %q", got)
	}
}
