package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopfront/commerce/internal/domain/product"
)

const (
	listProductsSQL    = `SELECT id, name, price, category, image_ref FROM products ORDER BY id`
	getProductByIDSQL  = `SELECT id, name, price, category, image_ref FROM products WHERE id = $1`
	getProductByIDsSQL = `SELECT id, name, price, category, image_ref FROM products WHERE id = ANY($1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns every product in the catalog.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scanning products: %w", err)
	}
	return products, nil
}

// GetByID returns a single product. Returns product.ErrNotFound when absent.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("finding product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns all products matching the given ids in a single query.
// Missing ids are simply absent from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("finding products: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scanning products: %w", err)
	}
	return products, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.ImageRef)
	return p, err
}
