package warehouse

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	xhttp "Indicium/pkg/http"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ScopeBigQueryReadOnly = "https://www.googleapis.com/auth/bigquery.readonly"
	jwtBearerGrant        = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	assertionLifetime = time.Hour
	expiryMargin      = 60 * time.Second
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// TokenSource exchanges signed assertions for access tokens and reuses them until shortly before expiry.
type TokenSource struct {
	sa       *ServiceAccount
	client   *xhttp.Client
	tokenURL string
	scope    string
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewTokenSource(sa *ServiceAccount, client *xhttp.Client, tokenURL string) *TokenSource {
	if tokenURL == "" {
		tokenURL = sa.TokenURI
	}
	return &TokenSource{
		sa:       sa,
		client:   client,
		tokenURL: tokenURL,
		scope:    ScopeBigQueryReadOnly,
		now:      time.Now,
	}
}

// SignAssertion builds the RS256 JWT presented to the token endpoint.
func (ts *TokenSource) SignAssertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   ts.sa.ClientEmail,
		"scope": ts.scope,
		"aud":   ts.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if ts.sa.PrivateKeyID != "" {
		tok.Header["kid"] = ts.sa.PrivateKeyID
	}

	signed, err := tok.SignedString(ts.sa.key)
	if err != nil {
		return "", &UpstreamError{Op: "sign", Err: err}
	}
	return signed, nil
}

// Token returns a valid access token, performing the exchange when the cached one is stale.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	if ts.token != "" && now.Before(ts.expires) {
		return ts.token, nil
	}

	assertion, err := ts.SignAssertion(now)
	if err != nil {
		return "", err
	}

	var resp tokenResponse
	err = ts.client.PostForm(ctx, ts.tokenURL, url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}, &resp)
	if err != nil {
		return "", upstream("token", err)
	}
	if resp.AccessToken == "" {
		return "", &UpstreamError{Op: "token", Err: fmt.Errorf("token endpoint returned no access_token")}
	}

	ts.token = resp.AccessToken
	ts.expires = now.Add(time.Duration(resp.ExpiresIn)*time.Second - expiryMargin)
	return ts.token, nil
}

// Invalidate drops the cached token, forcing a fresh exchange on next use.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.mu.Unlock()
}
