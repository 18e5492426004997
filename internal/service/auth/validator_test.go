package auth

import (
	"context"
	"errors"
	"testing"

	"Indicium/internal/domain/models"
	"Indicium/pkg/cache"
)

type failingStore struct{ err error }

func (f failingStore) GetToken(context.Context, string) (*models.TokenRecord, error) {
	return nil, f.err
}

func seed(t *testing.T) *cache.MemoryCache {
	t.Helper()
	kv := cache.NewMemoryCache()
	t.Cleanup(func() { _ = kv.Close() })
	ctx := context.Background()
	_ = kv.Set(ctx, "tokens:abc123", models.TokenRecord{Token: "abc123", IsActive: true, Tier: "free"}, 0)
	_ = kv.Set(ctx, "tokens:gone", `{"is_active":false}`, 0)
	return kv
}

func TestValidate(t *testing.T) {
	v := NewValidator(NewKVTokenStore(seed(t)), nil, nil)

	cases := []struct {
		name  string
		token string
		kind  string
	}{
		{"missing", "", KindMissing},
		{"unknown", "nope", KindInvalid},
		{"inactive", "gone", KindInactive},
		{"active", "abc123", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := v.Validate(context.Background(), tc.token)
			if tc.kind == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				if rec == nil || !rec.IsActive || rec.Tier != "free" {
					t.Fatalf("unexpected record %+v", rec)
				}
				return
			}
			var ae *AuthError
			if !errors.As(err, &ae) || ae.Kind != tc.kind {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
			if rec != nil {
				t.Fatalf("expected no record on failure")
			}
		})
	}
}

func TestValidateFailsClosedOnStoreError(t *testing.T) {
	boom := errors.New("redis down")
	v := NewValidator(failingStore{err: boom}, nil, nil)

	_, err := v.Validate(context.Background(), "abc123")
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Kind != KindError {
		t.Fatalf("expected AUTH_ERROR, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error to be wrapped")
	}
	if ae.Error() != "Error validating authentication token" {
		t.Fatalf("unexpected message %q", ae.Error())
	}
}

func TestKVTokenStoreFillsTokenField(t *testing.T) {
	rec, err := NewKVTokenStore(seed(t)).GetToken(context.Background(), "gone")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Token != "gone" || rec.IsActive {
		t.Fatalf("unexpected record %+v", rec)
	}
}
