package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopfront/commerce/internal/domain/coupon"
	"github.com/shopfront/commerce/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	ImageRef string          `json:"imageRef"`
}

type apiKeySeed struct {
	id     string
	key    string
	name   string
	userID string
	role   string
}

func main() {
	var (
		databaseURL  string
		productsFile string
		customerKey  string
		adminKey     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&customerKey, "customer-key", "", "customer API key to seed (or SHOP_SEED_CUSTOMER_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or SHOP_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if customerKey == "" {
		customerKey = os.Getenv("SHOP_SEED_CUSTOMER_KEY")
	}
	if adminKey == "" {
		adminKey = os.Getenv("SHOP_SEED_ADMIN_KEY")
	}
	if customerKey == "" || adminKey == "" {
		slog.Error("API keys are required: set --customer-key/--admin-key or SHOP_SEED_CUSTOMER_KEY/SHOP_SEED_ADMIN_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	keys := []apiKeySeed{
		{id: "customer-default", key: customerKey, name: "Default customer key", userID: "user-1", role: "customer"},
		{id: "admin-default", key: adminKey, name: "Default admin key", userID: "admin-1", role: "admin"},
	}

	if err := run(ctx, databaseURL, productsFile, keys, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, keys []apiKeySeed, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKeys(ctx, pool, keys, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, price, category, image_ref)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    name      = EXCLUDED.name,
    price     = EXCLUDED.price,
    category  = EXCLUDED.category,
    image_ref = EXCLUDED.image_ref`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Category, p.ImageRef); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertCouponSQL = `
INSERT INTO coupons (
    code, description, discount_type, discount_value, min_order_value,
    max_discount, usage_limit, usage_limit_per_user, start_date, end_date,
    categories, products, type, visibility, assigned_users, active
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (code) DO UPDATE SET
    description          = EXCLUDED.description,
    discount_type        = EXCLUDED.discount_type,
    discount_value       = EXCLUDED.discount_value,
    min_order_value      = EXCLUDED.min_order_value,
    max_discount         = EXCLUDED.max_discount,
    usage_limit          = EXCLUDED.usage_limit,
    usage_limit_per_user = EXCLUDED.usage_limit_per_user,
    start_date           = EXCLUDED.start_date,
    end_date             = EXCLUDED.end_date,
    categories           = EXCLUDED.categories,
    products             = EXCLUDED.products,
    type                 = EXCLUDED.type,
    visibility           = EXCLUDED.visibility,
    assigned_users       = EXCLUDED.assigned_users,
    active               = EXCLUDED.active`

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	start := time.Now().UTC().Truncate(24 * time.Hour)
	end := start.AddDate(1, 0, 0)

	demos := []*coupon.Builder{
		coupon.NewBuilder().
			Code("HAPPYHOURS").
			Description("Happy Hours: 18% off entire order").
			AsPercentageDiscount(decimal.NewFromInt(18)).
			DateRange(start, end).
			AsPublicFeatured().
			Active(true),
		coupon.NewBuilder().
			Code("WELCOME10").
			Description("New customer: $10 off your first order").
			AsFixedDiscount(decimal.NewFromInt(10)).
			MinOrderValue(decimal.NewFromInt(25)).
			DateRange(start, end).
			AsNewCustomerCoupon().
			Active(true),
		coupon.NewBuilder().
			Code("VIPONLY").
			Description("VIP: 25% off, up to $50").
			AsPercentageDiscount(decimal.NewFromInt(25)).
			MaxDiscount(decimal.NewFromInt(50)).
			DateRange(start, end).
			AsPrivateForUsers("user-1").
			Active(true),
	}

	for _, db := range demos {
		c, err := db.Build()
		if err != nil {
			return errors.Wrap(err, "build demo coupon")
		}

		if _, err := pool.Exec(ctx, upsertCouponSQL,
			c.Code, c.Description, c.DiscountType, c.DiscountValue,
			c.MinOrderValue, c.MaxDiscount, c.UsageLimit, c.UsageLimitPerUser,
			c.StartDate, c.EndDate, c.Categories, c.Products,
			c.Type, c.Visibility, c.AssignedUsers, c.Active,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}

	return nil
}

const upsertAPIKeySQL = `
INSERT INTO api_keys (id, key_hash, name, user_id, role)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    key_hash = EXCLUDED.key_hash,
    name     = EXCLUDED.name,
    user_id  = EXCLUDED.user_id,
    role     = EXCLUDED.role`

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, keys []apiKeySeed, pepper string) error {
	slog.Info("seeding API keys", slog.Int("count", len(keys)))

	for _, k := range keys {
		mac := hmac.New(sha256.New, []byte(pepper))
		mac.Write([]byte(k.key))
		keyHash := hex.EncodeToString(mac.Sum(nil))

		if _, err := pool.Exec(ctx, upsertAPIKeySQL, k.id, keyHash, k.name, k.userID, k.role); err != nil {
			return errors.Wrapf(err, "upsert API key %s", k.id)
		}

		slog.Info("upserted API key", slog.String("id", k.id), slog.String("role", k.role))
	}

	return nil
}
