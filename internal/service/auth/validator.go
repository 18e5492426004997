package auth

import (
	"context"
	"errors"
	"fmt"

	"Indicium/internal/domain/models"
	domrepo "Indicium/internal/domain/repository"
	domsvc "Indicium/internal/domain/service"
	"Indicium/pkg/cache"
	applogger "Indicium/pkg/logger"
	"Indicium/pkg/metrics"
	"Indicium/pkg/util"
)

// Error kinds reported to API clients.
const (
	KindMissing  = "MISSING_TOKEN"
	KindInvalid  = "INVALID_TOKEN"
	KindInactive = "TOKEN_INACTIVE"
	KindError    = "AUTH_ERROR"
)

var messages = map[string]string{
	KindMissing:  "Authentication token is required. Provide ?token=YOUR_TOKEN",
	KindInvalid:  "Authentication token is invalid or expired",
	KindInactive: "Authentication token has been deactivated",
	KindError:    "Error validating authentication token",
}

// AuthError is a rejected token. Err holds the store failure for AUTH_ERROR.
type AuthError struct {
	Kind string
	Err  error
}

func (e *AuthError) Error() string {
	return messages[e.Kind]
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Validator checks tokens against the token store. It never writes.
type Validator struct {
	store   domrepo.TokenStore
	logger  *applogger.Logger
	metrics domrepo.Metrics
}

var _ domsvc.TokenValidator = (*Validator)(nil)

func NewValidator(store domrepo.TokenStore, logger *applogger.Logger, m domrepo.Metrics) *Validator {
	if logger == nil {
		logger = applogger.NewNop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Validator{store: store, logger: logger, metrics: m}
}

// Validate returns the active token record or an *AuthError.
// Store failures reject the request.
func (v *Validator) Validate(ctx context.Context, token string) (*models.TokenRecord, error) {
	if token == "" {
		return nil, v.reject(KindMissing, nil)
	}

	rec, err := v.store.GetToken(ctx, token)
	if err != nil {
		v.logger.Error("token lookup failed",
			applogger.String("token", util.MaskToken(token)),
			applogger.Error(err),
		)
		return nil, v.reject(KindError, err)
	}
	if rec == nil {
		return nil, v.reject(KindInvalid, nil)
	}
	if !rec.IsActive {
		return nil, v.reject(KindInactive, nil)
	}
	return rec, nil
}

func (v *Validator) reject(kind string, err error) *AuthError {
	v.metrics.RecordAuthFailure(kind)
	return &AuthError{Kind: kind, Err: err}
}

// KVTokenStore reads token records stored as JSON under tokens:<token>.
type KVTokenStore struct {
	kv cache.Service
}

func NewKVTokenStore(kv cache.Service) *KVTokenStore {
	return &KVTokenStore{kv: kv}
}

func (s *KVTokenStore) GetToken(ctx context.Context, token string) (*models.TokenRecord, error) {
	rec, err := cache.GetTyped[models.TokenRecord](ctx, s.kv, cache.GenerateKey("tokens", token))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	if rec.Token == "" {
		rec.Token = token
	}
	return rec, nil
}
