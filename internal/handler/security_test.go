package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/commerce/internal/domain/auth"
)

type mockKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.keys[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return info, nil
}

func hashKey(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestAuth(t *testing.T) {
	pepper := []byte("test-pepper")
	repo := &mockKeyRepo{keys: map[string]*auth.APIKeyInfo{
		hashKey("customer-key", pepper): {ID: "k1", KeyHash: hashKey("customer-key", pepper), UserID: "user-1", Role: auth.RoleCustomer},
		hashKey("admin-key", pepper):    {ID: "k2", KeyHash: hashKey("admin-key", pepper), UserID: "admin-1", Role: auth.RoleAdmin},
	}}

	var gotActor auth.Actor
	var called bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, called = auth.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	protected := Auth(repo, pepper)(inner)

	do := func(key string) *httptest.ResponseRecorder {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		if key != "" {
			req.Header.Set("api_key", key)
		}
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid customer key resolves actor", func(t *testing.T) {
		rec := do("customer-key")
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, called)
		assert.Equal(t, auth.Actor{UserID: "user-1", Admin: false}, gotActor)
	})

	t.Run("admin key sets admin flag", func(t *testing.T) {
		rec := do("admin-key")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, gotActor.Admin)
	})

	t.Run("missing key is unauthorized", func(t *testing.T) {
		rec := do("")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("unknown key is unauthorized", func(t *testing.T) {
		rec := do("wrong-key")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})
}
