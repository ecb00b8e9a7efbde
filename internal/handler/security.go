package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/shopfront/commerce/internal/domain/auth"
	"github.com/shopfront/commerce/pkg/httpmiddleware"
)

// Auth returns a middleware that authenticates requests via HMAC-SHA256
// hashed API keys and resolves the key's actor into the request context.
// The key is read from the api_key header.
func Auth(apikeys auth.Repository, pepper []byte) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("api_key")
			if key == "" {
				respondError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			mac := hmac.New(sha256.New, pepper)
			mac.Write([]byte(key))
			hash := mac.Sum(nil)

			info, err := apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			stored, err := hex.DecodeString(info.KeyHash)
			if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			actor := auth.Actor{
				UserID: info.UserID,
				Admin:  info.Role == auth.RoleAdmin,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}
