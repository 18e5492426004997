package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Indicium/internal/domain/models"
	"Indicium/internal/service/auth"
	svccache "Indicium/internal/service/cache"
	"Indicium/internal/service/ratelimit"
	"Indicium/internal/usecase"
	kv "Indicium/pkg/cache"
	xhttp "Indicium/pkg/http"

	"github.com/labstack/echo/v4"
)

type testEnv struct {
	srv   *xhttp.Server
	store *svccache.SnapshotStore
	kv    *kv.MemoryCache
}

func newTestEnv(t *testing.T, perMinute int) *testEnv {
	t.Helper()
	mc := kv.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	ctx := context.Background()
	_ = mc.Set(ctx, "tokens:abc123", models.TokenRecord{Token: "abc123", IsActive: true}, 0)
	_ = mc.Set(ctx, "tokens:other", models.TokenRecord{Token: "other", IsActive: true}, 0)
	_ = mc.Set(ctx, "tokens:off", models.TokenRecord{Token: "off", IsActive: false}, 0)

	fixed := time.Date(2025, 1, 2, 10, 0, 5, 0, time.UTC)
	store := svccache.NewSnapshotStore(mc)
	h := NewSignalsHandler(
		auth.NewValidator(auth.NewKVTokenStore(mc), nil, nil),
		ratelimit.New(mc, perMinute, ratelimit.WithClock(func() time.Time { return fixed })),
		store,
		nil,
		HandlerConfig{ServiceName: "indicium-free-api", APIVersion: "1.0.0", TTLSeconds: 600},
	)
	h.SetClock(func() time.Time { return fixed })

	return &testEnv{srv: xhttp.NewServer(h, nil), store: store, kv: mc}
}

func (e *testEnv) seedSnapshot(t *testing.T) {
	t.Helper()
	gen := time.Date(2025, 1, 2, 9, 50, 0, 0, time.UTC)
	snap := usecase.SnapshotBuilder{TTLSeconds: 600, APIVersion: "1.0.0", RefreshIntervalMinutes: 10}.
		Build([]models.Signal{nvda()}, models.SourceBigQuery, "v_api_free_signals", gen)
	if err := e.store.Save(context.Background(), snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
}

func (e *testEnv) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		Timestamp  string `json:"timestamp"`
		RetryAfter *int   `json:"retry_after"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	if body.Error.Timestamp == "" {
		t.Fatalf("expected timestamp in error body")
	}
	return body
}

func TestSignalsRateLimitScenario(t *testing.T) {
	env := newTestEnv(t, 2)
	env.seedSnapshot(t)

	first := env.do(http.MethodGet, "/v1/signals?token=abc123&format=json")
	second := env.do(http.MethodGet, "/v1/signals?token=abc123&format=json")
	third := env.do(http.MethodGet, "/v1/signals?token=abc123&format=json")

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected 200 twice, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies")
	}

	var snap models.Snapshot
	if err := json.Unmarshal(first.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Meta.TotalCount != 1 || snap.Data[0].Ticker != "NVDA" || snap.Data[0].Signal.Type != "BUY" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Data[0].Scores.Average != 85.0 {
		t.Fatalf("expected trinity average 85, got %v", snap.Data[0].Scores.Average)
	}

	if third.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", third.Code)
	}
	body := decodeError(t, third)
	if body.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("unexpected code %q", body.Error.Code)
	}
	if body.Error.RetryAfter == nil || *body.Error.RetryAfter <= 0 || *body.Error.RetryAfter > 60 {
		t.Fatalf("expected retry_after in (0,60], got %v", body.Error.RetryAfter)
	}
	if *body.Error.RetryAfter != 55 {
		t.Fatalf("expected retry_after 55 at second 5, got %d", *body.Error.RetryAfter)
	}

	// A different token has its own window.
	if rec := env.do(http.MethodGet, "/v1/signals?token=other"); rec.Code != http.StatusOK {
		t.Fatalf("expected other token to pass, got %d", rec.Code)
	}
}

func TestSignalsSuccessHeaders(t *testing.T) {
	env := newTestEnv(t, 30)
	env.seedSnapshot(t)

	rec := env.do(http.MethodGet, "/v1/signals?token=abc123")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	h := rec.Header()
	checks := map[string]string{
		HeaderGeneratedAt:                   "2025-01-02T09:50:00.000Z",
		HeaderCacheHit:                      "true",
		HeaderAPIVersion:                    "1.0.0",
		echo.HeaderCacheControl:             "public, max-age=600",
		HeaderRateLimitLimit:                "30",
		HeaderRateLimitRemaining:            "29",
		echo.HeaderAccessControlAllowOrigin: "*",
	}
	for k, want := range checks {
		if got := h.Get(k); got != want {
			t.Errorf("header %s: expected %q, got %q", k, want, got)
		}
	}
	if !strings.HasPrefix(h.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		t.Errorf("unexpected content type %q", h.Get(echo.HeaderContentType))
	}
}

func TestSignalsCSV(t *testing.T) {
	env := newTestEnv(t, 30)
	env.seedSnapshot(t)

	rec := env.do(http.MethodGet, "/v1/signals?token=abc123&format=csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentDisposition); got != `attachment; filename="indicium-signals-2025-01-02.csv"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv") {
		t.Fatalf("unexpected content type %q", rec.Header().Get(echo.HeaderContentType))
	}
	if rec.Header().Get(HeaderCacheHit) != "true" {
		t.Fatalf("expected cache hit header on CSV")
	}
	if lines := strings.Split(rec.Body.String(), "\n"); len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
}

func TestSignalsAuthFailures(t *testing.T) {
	env := newTestEnv(t, 30)
	env.seedSnapshot(t)

	cases := []struct {
		target string
		code   string
	}{
		{"/v1/signals", auth.KindMissing},
		{"/v1/signals?token=nope", auth.KindInvalid},
		{"/v1/signals?token=off", auth.KindInactive},
	}
	for _, tc := range cases {
		rec := env.do(http.MethodGet, tc.target)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tc.target, rec.Code)
		}
		if body := decodeError(t, rec); body.Error.Code != tc.code {
			t.Fatalf("%s: expected %s, got %s", tc.target, tc.code, body.Error.Code)
		}
	}
}

func TestSignalsInactiveTokenIgnoresRateLimit(t *testing.T) {
	env := newTestEnv(t, 2)
	env.seedSnapshot(t)

	ctx := context.Background()
	fixed := time.Date(2025, 1, 2, 10, 0, 5, 0, time.UTC)
	key := kv.GenerateKeyWithParams("ratelimit", "off", fixed.UnixMilli()/60000)
	for i := 0; i < 5; i++ {
		if _, err := env.kv.Increment(ctx, key, time.Minute); err != nil {
			t.Fatalf("exhaust counter: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		rec := env.do(http.MethodGet, "/v1/signals?token=off")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 with exhausted window, got %d", rec.Code)
		}
		if body := decodeError(t, rec); body.Error.Code != auth.KindInactive {
			t.Fatalf("expected %s, got %s", auth.KindInactive, body.Error.Code)
		}
	}

	var n int64
	if err := env.kv.Get(ctx, key, &n); err != nil || n != 5 {
		t.Fatalf("expected rejected token not to be counted, got %d (%v)", n, err)
	}
}

func TestSignalsInvalidFormat(t *testing.T) {
	env := newTestEnv(t, 30)
	env.seedSnapshot(t)

	rec := env.do(http.MethodGet, "/v1/signals?token=abc123&format=xml")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error.Code != "INVALID_FORMAT" || body.Error.Message != "Format must be 'json' or 'csv'" {
		t.Fatalf("unexpected error %+v", body.Error)
	}
}

func TestSignalsCacheEmpty(t *testing.T) {
	env := newTestEnv(t, 30)

	for _, target := range []string{"/v1/signals?token=abc123", "/v1/signals?token=abc123&format=csv"} {
		rec := env.do(http.MethodGet, target)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", target, rec.Code)
		}
		body := decodeError(t, rec)
		if body.Error.Code != "CACHE_EMPTY" || body.Error.RetryAfter == nil || *body.Error.RetryAfter != 30 {
			t.Fatalf("unexpected error %+v", body.Error)
		}
	}
}

type brokenReader struct{}

func (brokenReader) Load(context.Context) (*models.Snapshot, error) {
	return nil, errors.New("redis: connection refused")
}

func TestSignalsStoreErrorIsInternal(t *testing.T) {
	mc := kv.NewMemoryCache()
	defer mc.Close()
	_ = mc.Set(context.Background(), "tokens:abc123", models.TokenRecord{IsActive: true}, 0)

	h := NewSignalsHandler(auth.NewValidator(auth.NewKVTokenStore(mc), nil, nil), ratelimit.New(mc, 30), brokenReader{}, nil, HandlerConfig{})
	srv := xhttp.NewServer(h, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/signals?token=abc123", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error.Code != "INTERNAL_ERROR" || strings.Contains(rec.Body.String(), "redis") {
		t.Fatalf("expected generic internal error, got %s", rec.Body.String())
	}
}

func TestRouting(t *testing.T) {
	env := newTestEnv(t, 30)

	if rec := env.do(http.MethodOptions, "/v1/signals"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	} else if rec.Header().Get(echo.HeaderAccessControlAllowMethods) != "GET, OPTIONS" {
		t.Fatalf("unexpected allow methods %q", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	}

	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := env.do(m, "/v1/signals?token=abc123")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", m, rec.Code)
		}
		if body := decodeError(t, rec); body.Error.Code != "METHOD_NOT_ALLOWED" {
			t.Fatalf("%s: unexpected code %s", m, body.Error.Code)
		}
	}

	rec := env.do(http.MethodGet, "/v2/nothing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error.Code != "NOT_FOUND" {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}

	for _, p := range []string{"/", "/health"} {
		rec := env.do(http.MethodGet, p)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", p, rec.Code)
		}
		var health xhttp.HealthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
			t.Fatalf("decode health: %v", err)
		}
		if health.Status != "ok" || health.Service != "indicium-free-api" || health.Version != "1.0.0" {
			t.Fatalf("unexpected health %+v", health)
		}
	}
}
