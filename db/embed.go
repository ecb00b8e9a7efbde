// Package db holds the embedded SQL schema applied at startup.
package db

import _ "embed"

// Schema is the full DDL for products, coupons, orders, and api keys.
//
//go:embed migrations/001_schema.sql
var Schema string
