package warehouse

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	xhttp "Indicium/pkg/http"

	"github.com/golang-jwt/jwt/v5"
)

type fakeWarehouse struct {
	t             *testing.T
	key           *rsa.PrivateKey
	tokenCalls    atomic.Int32
	queryCalls    atomic.Int32
	failQueries   int32        // respond 503 to the first n queries
	rejectQueries atomic.Int32 // respond 401 to the first n queries
	jobIncomplete bool
	lastQuery     queryRequest
	srv           *httptest.Server
}

func newFakeWarehouse(t *testing.T) *fakeWarehouse {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	fw := &fakeWarehouse{t: t, key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", fw.handleToken)
	mux.HandleFunc("/bigquery/v2/projects/test-project/queries", fw.handleQuery)
	fw.srv = httptest.NewServer(mux)
	t.Cleanup(fw.srv.Close)
	return fw
}

func (fw *fakeWarehouse) credentialsJSON() string {
	der, err := x509.MarshalPKCS8PrivateKey(fw.key)
	if err != nil {
		fw.t.Fatalf("marshal key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	raw, _ := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "test-project",
		"private_key_id": "kid-1",
		"private_key":    string(pemKey),
		"client_email":   "svc@test-project.iam.gserviceaccount.com",
		"token_uri":      fw.srv.URL + "/token",
	})
	return string(raw)
}

func (fw *fakeWarehouse) handleToken(w http.ResponseWriter, r *http.Request) {
	fw.tokenCalls.Add(1)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.Form.Get("grant_type") != jwtBearerGrant {
		http.Error(w, "bad grant", http.StatusBadRequest)
		return
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(r.Form.Get("assertion"), claims, func(tok *jwt.Token) (interface{}, error) {
		return &fw.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if claims["scope"] != ScopeBigQueryReadOnly || claims["aud"] != fw.srv.URL+"/token" {
		http.Error(w, "bad claims", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"access_token":"ya29.test","expires_in":3600,"token_type":"Bearer"}`))
}

func (fw *fakeWarehouse) handleQuery(w http.ResponseWriter, r *http.Request) {
	n := fw.queryCalls.Add(1)
	if r.Header.Get("Authorization") != "Bearer ya29.test" || n <= fw.rejectQueries.Load() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if n <= fw.failQueries {
		http.Error(w, "backend error", http.StatusServiceUnavailable)
		return
	}
	_ = json.NewDecoder(r.Body).Decode(&fw.lastQuery)

	w.Header().Set("Content-Type", "application/json")
	if fw.jobIncomplete {
		_, _ = w.Write([]byte(`{"jobComplete":false}`))
		return
	}
	_, _ = w.Write([]byte(`{
	  "jobComplete": true,
	  "schema": {"fields": [
	    {"name":"id"},{"name":"ticker"},{"name":"company_name"},{"name":"sector"},
	    {"name":"signal_type"},{"name":"signal_strength"},{"name":"dominant_author"},{"name":"confidence"},
	    {"name":"price"},{"name":"change_percent"},{"name":"target_price"},{"name":"stop_loss"},
	    {"name":"trinity_score_lynch"},{"name":"trinity_score_oneil"},{"name":"trinity_score_graham"},
	    {"name":"trinity_score_avg"},{"name":"risk_profile"},{"name":"market_cap"},{"name":"pe_ratio"},
	    {"name":"eps"},{"name":"dividend_yield"},{"name":"volume"},{"name":"signal_date"},
	    {"name":"last_updated"},{"name":"reasoning"},{"name":"internal_rank"}
	  ]},
	  "rows": [
	    {"f":[{"v":"sig-1"},{"v":"NVDA"},{"v":"NVIDIA Corporation"},{"v":"Technology"},
	          {"v":"BUY"},{"v":"95"},{"v":"O'Neil"},{"v":"92"},
	          {"v":"495.5"},{"v":"3.2"},{"v":"575"},{"v":null},
	          {"v":"88"},{"v":"95"},{"v":"72"},
	          {"v":null},{"v":"Aggressive"},{"v":"$2.5T"},{"v":"0"},
	          {"v":"6.32"},{"v":"0.05"},{"v":"45230000"},{"v":"2025-01-02"},
	          {"v":"2025-01-02T10:00:00Z"},{"v":"Breakout, with volume"},{"v":"7"}]}
	  ],
	  "totalRows": "1"
	}`))
}

func (fw *fakeWarehouse) source(t *testing.T, attempts int) *BigQuerySource {
	t.Helper()
	sa, err := ParseServiceAccount([]byte(fw.credentialsJSON()))
	if err != nil {
		t.Fatalf("parse service account: %v", err)
	}
	client := xhttp.NewClient(xhttp.WithTimeout(5 * time.Second))
	return NewBigQuerySource(Config{
		ProjectID: "test-project",
		Dataset:   "analytics",
		View:      "v_api_free_signals",
		BaseURL:   fw.srv.URL + "/bigquery/v2",
		Retry:     xhttp.RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond},
	}, NewTokenSource(sa, client, ""), client, nil, nil)
}

func TestFetchSignalsMapsRows(t *testing.T) {
	fw := newFakeWarehouse(t)
	src := fw.source(t, 1)

	signals, err := src.FetchSignals(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	s := signals[0]
	if s.Ticker != "NVDA" || s.Signal.Type != "BUY" || s.Signal.DominantAuthor != "O'Neil" {
		t.Fatalf("unexpected identity fields %+v", s)
	}
	if s.Price.Target == nil || *s.Price.Target != 575 {
		t.Fatalf("expected target 575, got %v", s.Price.Target)
	}
	if s.Price.StopLoss != nil || s.Fundamentals.PERatio != nil {
		t.Fatalf("expected null stop loss and pe ratio")
	}
	if s.Fundamentals.EPS == nil || *s.Fundamentals.EPS != 6.32 {
		t.Fatalf("expected eps 6.32, got %v", s.Fundamentals.EPS)
	}
	if s.Scores.Average != 85 {
		t.Fatalf("expected computed average 85, got %v", s.Scores.Average)
	}
	if s.Fundamentals.Volume != 45230000 || s.RiskProfile != "Aggressive" {
		t.Fatalf("unexpected fundamentals %+v", s.Fundamentals)
	}

	want := "SELECT * FROM `test-project.analytics.v_api_free_signals` ORDER BY signal_strength DESC, ticker ASC LIMIT 100"
	if fw.lastQuery.Query != want || fw.lastQuery.UseLegacySQL || fw.lastQuery.TimeoutMs != 30000 {
		t.Fatalf("unexpected query request %+v", fw.lastQuery)
	}
}

func TestAccessTokenIsReused(t *testing.T) {
	fw := newFakeWarehouse(t)
	src := fw.source(t, 1)

	for i := 0; i < 3; i++ {
		if _, err := src.FetchSignals(context.Background()); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := fw.tokenCalls.Load(); got != 1 {
		t.Fatalf("expected a single token exchange, got %d", got)
	}
}

func TestIncompleteJobIsUpstreamTimeout(t *testing.T) {
	fw := newFakeWarehouse(t)
	fw.jobIncomplete = true
	src := fw.source(t, 3)

	_, err := src.FetchSignals(context.Background())
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
	if fw.queryCalls.Load() != 1 {
		t.Fatalf("incomplete jobs must not be retried")
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	fw := newFakeWarehouse(t)
	fw.failQueries = 1
	src := fw.source(t, 2)

	if _, err := src.FetchSignals(context.Background()); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if fw.queryCalls.Load() != 2 {
		t.Fatalf("expected 2 query calls, got %d", fw.queryCalls.Load())
	}
}

func TestRejectedTokenIsRefreshedOnce(t *testing.T) {
	fw := newFakeWarehouse(t)
	src := fw.source(t, 3)
	if _, err := src.FetchSignals(context.Background()); err != nil {
		t.Fatalf("warm token: %v", err)
	}

	// The cached token is revoked upstream.
	fw.rejectQueries.Store(fw.queryCalls.Load() + 1)
	if _, err := src.FetchSignals(context.Background()); err != nil {
		t.Fatalf("expected a fresh token to recover, got %v", err)
	}
	if got := fw.tokenCalls.Load(); got != 2 {
		t.Fatalf("expected a second token exchange, got %d", got)
	}
	if got := fw.queryCalls.Load(); got != 3 {
		t.Fatalf("expected 3 query calls, got %d", got)
	}
}

func TestPersistentUnauthorizedIsNotRetriedTwice(t *testing.T) {
	fw := newFakeWarehouse(t)
	fw.rejectQueries.Store(100)
	src := fw.source(t, 5)

	_, err := src.FetchSignals(context.Background())
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Retryable {
		t.Fatalf("expected permanent UpstreamError, got %v", err)
	}
	if got := fw.queryCalls.Load(); got != 2 {
		t.Fatalf("expected one retry after re-auth, got %d query calls", got)
	}
}

func TestServerErrorSurfacesAsUpstreamError(t *testing.T) {
	fw := newFakeWarehouse(t)
	fw.failQueries = 10
	src := fw.source(t, 1)

	_, err := src.FetchSignals(context.Background())
	var ue *UpstreamError
	if !errors.As(err, &ue) || !ue.Retryable || ue.Op != "query" {
		t.Fatalf("expected retryable query UpstreamError, got %v", err)
	}
}

func TestParseServiceAccountRejectsBadKey(t *testing.T) {
	_, err := ParseServiceAccount([]byte(`{"client_email":"a@b","private_key":"not a key"}`))
	if err == nil || !strings.Contains(err.Error(), "private key") {
		t.Fatalf("expected private key error, got %v", err)
	}
}

func TestParseServiceAccountEscapedNewlines(t *testing.T) {
	fw := newFakeWarehouse(t)
	var doc map[string]string
	_ = json.Unmarshal([]byte(fw.credentialsJSON()), &doc)
	doc["private_key"] = strings.ReplaceAll(doc["private_key"], "\n", `\n`)
	raw, _ := json.Marshal(doc)

	sa, err := ParseServiceAccount(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sa.TokenURI != fw.srv.URL+"/token" {
		t.Fatalf("unexpected token uri %q", sa.TokenURI)
	}
}

func TestSignAssertionClaims(t *testing.T) {
	fw := newFakeWarehouse(t)
	sa, _ := ParseServiceAccount([]byte(fw.credentialsJSON()))
	ts := NewTokenSource(sa, xhttp.NewClient(), "")

	now := time.Now().Truncate(time.Second)
	signed, err := ts.SignAssertion(now)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if parts := strings.Split(signed, "."); len(parts) != 3 {
		t.Fatalf("expected three JWT segments, got %d", len(parts))
	}

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (interface{}, error) {
		return &fw.key.PublicKey, nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if tok.Header["alg"] != "RS256" || tok.Header["typ"] != "JWT" || tok.Header["kid"] != "kid-1" {
		t.Fatalf("unexpected header %v", tok.Header)
	}
	if claims["iss"] != sa.ClientEmail {
		t.Fatalf("unexpected iss %v", claims["iss"])
	}
	exp, _ := claims.GetExpirationTime()
	iat, _ := claims.GetIssuedAt()
	if exp.Sub(iat.Time) != time.Hour {
		t.Fatalf("expected one hour lifetime, got %s", exp.Sub(iat.Time))
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("read tcp: ECONNRESET"), true},
		{errors.New("getaddrinfo EAI_AGAIN"), true},
		{errors.New("Rate limit exceeded for project"), true},
		{&xhttp.StatusError{StatusCode: 429}, true},
		{&xhttp.StatusError{StatusCode: 502}, true},
		{&xhttp.StatusError{StatusCode: 400}, false},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{ErrUpstreamTimeout, false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestMapRowsSchemaDrift(t *testing.T) {
	if _, err := MapRows([]string{"id", "ticker"}, nil); err == nil {
		t.Fatalf("expected missing signal_type to fail")
	}
	_, err := MapRows([]string{"id", "ticker", "signal_type"}, [][]interface{}{{"1", "AAPL"}})
	if err == nil {
		t.Fatalf("expected short row to fail")
	}
	_, err = MapRows([]string{"id", "ticker", "signal_type", "price"}, [][]interface{}{{"1", "AAPL", "BUY", "abc"}})
	if err == nil {
		t.Fatalf("expected non-numeric price to fail")
	}
}
