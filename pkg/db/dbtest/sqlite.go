// Package dbtest opens throwaway sqlite databases carrying the fulfillment
// schema so repository tests run without Postgres.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  customer_id TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  items TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  tax TEXT NOT NULL,
  shipping_fee TEXT NOT NULL,
  total TEXT NOT NULL,
  status TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  gateway_order_id TEXT,
  payment_confirmation_id TEXT,
  shipping_address TEXT NOT NULL,
  waybill TEXT,
  carrier_name TEXT,
  tracking_url TEXT,
  pickup_scheduled INTEGER NOT NULL DEFAULT 0,
  pickup_error TEXT,
  cancellation_reason TEXT,
  delivered_at DATETIME,
  label_ref TEXT,
  invoice_ref TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE return_requests (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  reason TEXT NOT NULL,
  status TEXT NOT NULL,
  return_waybill TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (order_id, product_id)
);`,
	`CREATE TABLE products (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0,
  sold_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE cart_items (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE notifications (
  id TEXT PRIMARY KEY,
  recipient_id TEXT,
  recipient_email TEXT NOT NULL,
  kind TEXT NOT NULL,
  order_id TEXT,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  data TEXT,
  provider TEXT,
  delivered INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  read_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json BLOB NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns an isolated in-memory database with every fulfillment table.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite shared cache reports table locks instead of waiting; serialize access.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}
