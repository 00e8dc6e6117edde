// Package dbtest opens throwaway sqlite databases carrying the orders schema.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bookloop/orderflow/pkg/db"
)

// sqlite mirror of pkg/migrate/migrations. Numerics and uuids are stored as text.
var schema = []string{
	`CREATE TABLE books (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		title TEXT NOT NULL,
		price TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active'
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		book_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		buyer_email TEXT NOT NULL,
		amount TEXT NOT NULL,
		payment_provider TEXT NOT NULL DEFAULT 'unknown',
		payment_reference TEXT,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		delivery_status TEXT NOT NULL DEFAULT 'none',
		refund_status TEXT NOT NULL DEFAULT 'none',
		payout_method TEXT,
		tracking_number TEXT,
		courier TEXT,
		cancellation_reason TEXT,
		commit_deadline DATETIME,
		paid_at DATETIME,
		committed_at DATETIME,
		delivered_at DATETIME,
		completed_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_orders_tracking_number ON orders (tracking_number) WHERE tracking_number IS NOT NULL`,
	`CREATE TABLE payment_transactions (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_reference TEXT NOT NULL,
		provider_transaction_id TEXT,
		payment_method TEXT,
		payment_url TEXT,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		raw_response BLOB,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_transactions_reference ON payment_transactions (provider, provider_reference)`,
	`CREATE UNIQUE INDEX ux_payment_transactions_one_success ON payment_transactions (order_id) WHERE status = 'success'`,
	`CREATE TABLE refund_transactions (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		initiated_by TEXT NOT NULL,
		actor_id TEXT,
		status TEXT NOT NULL,
		provider_response BLOB,
		error_message TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_refund_transactions_one_success ON refund_transactions (order_id) WHERE status = 'success'`,
	`CREATE TABLE processed_events (
		idempotency_key TEXT NOT NULL,
		effect_type TEXT NOT NULL,
		outcome TEXT NOT NULL,
		created_at DATETIME,
		processed_at DATETIME,
		PRIMARY KEY (idempotency_key, effect_type)
	)`,
	`CREATE TABLE wallet_transactions (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		gross_amount TEXT NOT NULL,
		fee_amount TEXT NOT NULL,
		description TEXT NOT NULL,
		created_at DATETIME,
		UNIQUE (order_id, type)
	)`,
	`CREATE TABLE seller_banking_details (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		account_holder TEXT NOT NULL,
		bank_name TEXT NOT NULL,
		account_number_encrypted TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE affiliate_referrals (
		id TEXT PRIMARY KEY,
		affiliate_id TEXT NOT NULL,
		seller_id TEXT NOT NULL UNIQUE,
		created_at DATETIME
	)`,
	`CREATE TABLE affiliate_orders (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		affiliate_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		commission_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE platform_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME
	)`,
	`INSERT INTO platform_settings (key, value) VALUES
		('platform_fee_percent', '10'),
		('commit_window_hours', '48'),
		('affiliate_commission_percent', '2')`,
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
	)`,
}

// logOutput receives gorm logs. Tests expect record-not-found and constraint
// errors, so nothing is logged at the default level.
var logOutput io.Writer = os.Stderr

// Open returns a fresh in-memory database with the schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	quiet := gormlogger.New(log.New(logOutput, "", log.LstdFlags), gormlogger.Config{
		LogLevel:                  gormlogger.Silent,
		IgnoreRecordNotFoundError: true,
	})
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 quiet,
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Client wraps Open in a db.Client.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.Wrap(Open(t))
}
