package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopfront/commerce/internal/domain/auth"
)

const getAPIKeyByHashSQL = `SELECT id, key_hash, name, user_id, role
	FROM api_keys WHERE key_hash = $1`

// ErrAPIKeyNotFound is returned when no API key matches the given hash.
var ErrAPIKeyNotFound = errors.New("api key not found")

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		info auth.APIKeyInfo
		role string
	)
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.UserID, &role,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	info.Role = auth.Role(role)
	return &info, nil
}
