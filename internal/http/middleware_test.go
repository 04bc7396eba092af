package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/eventloom/ticketpay/internal/observability"
)

func TestIdempotencyKeyMiddleware(t *testing.T) {
	handler := IdempotencyKeyMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"initiate without key", http.MethodPost, "/v1/payments/initiate", "", http.StatusBadRequest},
		{"initiate with short key", http.MethodPost, "/v1/payments/initiate", "short", http.StatusBadRequest},
		{"initiate with key", http.MethodPost, "/v1/payments/initiate", "0123456789abcdef", http.StatusOK},
		{"payout without key", http.MethodPost, "/v1/payouts", "", http.StatusBadRequest},
		{"payout with key", http.MethodPost, "/v1/payouts", strings.Repeat("k", 32), http.StatusOK},
		{"other post unguarded", http.MethodPost, "/v1/events", "", http.StatusOK},
		{"get unguarded", http.MethodGet, "/v1/payments/initiate", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.key != "" {
				req.Header.Set("Idempotency-Key", tc.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestMetricsMiddleware_CountsByRouteCodeMethod(t *testing.T) {
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	counter := observability.RequestsTotal.WithLabelValues("/v1/payouts", "201", http.MethodPost)
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/payouts", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestMetricsMiddleware_ImplicitOK(t *testing.T) {
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	counter := observability.RequestsTotal.WithLabelValues("/v1/healthz", "200", http.MethodGet)
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
