package testutil

import (
  "fmt"
  "sync/atomic"
  "testing"

  "gorm.io/driver/sqlite"
  "gorm.io/gorm"
  gormlogger "gorm.io/gorm/logger"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
)

var dbCounter int64

// schema mirrors the postgres models, minus the uuid_generate_v4 defaults
// that sqlite cannot parse. IDs come from the BeforeCreate hooks instead.
var schema = []string{
  `CREATE TABLE "user" (
    id text PRIMARY KEY,
    user_type text NOT NULL DEFAULT 'agent',
    email text NOT NULL UNIQUE,
    phone_number text,
    password text NOT NULL DEFAULT '',
    first_name text NOT NULL DEFAULT '',
    last_name text NOT NULL DEFAULT '',
    avatar_bucket_key text NOT NULL DEFAULT '',
    avatar_url text NOT NULL DEFAULT '',
    created_at datetime,
    updated_at datetime,
    deleted_at datetime
  )`,
  `CREATE TABLE user_token (
    id text PRIMARY KEY,
    user_id text NOT NULL REFERENCES "user"(id),
    refresh_token text NOT NULL UNIQUE,
    expires_at datetime NOT NULL,
    created_at datetime,
    updated_at datetime,
    deleted_at datetime
  )`,
  `CREATE TABLE chat (
    id text PRIMARY KEY,
    guest_identifier text NOT NULL UNIQUE,
    guest_name text NOT NULL DEFAULT '',
    guest_email text NOT NULL DEFAULT '',
    agent_id text REFERENCES "user"(id),
    auto_reply_enabled numeric NOT NULL DEFAULT true,
    last_activity_at datetime NOT NULL DEFAULT CURRENT_TIMESTAMP,
    avatar_bucket_key text NOT NULL DEFAULT '',
    avatar_url text NOT NULL DEFAULT '',
    created_at datetime,
    updated_at datetime,
    deleted_at datetime
  )`,
  `CREATE TABLE message (
    id text PRIMARY KEY,
    seq integer,
    chat_id text NOT NULL REFERENCES chat(id),
    sender text NOT NULL,
    user_id text REFERENCES "user"(id),
    content text NOT NULL DEFAULT '',
    file_path text NOT NULL DEFAULT '',
    file_type text NOT NULL DEFAULT '',
    file_size integer NOT NULL DEFAULT 0,
    is_auto_reply numeric NOT NULL DEFAULT false,
    created_at datetime,
    updated_at datetime,
    deleted_at datetime
  )`,
  // Postgres fills seq from a bigserial; sqlite has no non-PK autoincrement,
  // so the trigger copies the rowid in.
  `CREATE TRIGGER message_seq_fill AFTER INSERT ON message
  BEGIN
    UPDATE message SET seq = NEW.rowid WHERE rowid = NEW.rowid;
  END`,
  `CREATE TABLE auto_reply_rule (
    id text PRIMARY KEY,
    chat_id text REFERENCES chat(id),
    keyword text NOT NULL UNIQUE,
    reply_message text NOT NULL DEFAULT '',
    is_active numeric NOT NULL DEFAULT true,
    created_by text,
    created_at datetime,
    updated_at datetime,
    deleted_at datetime
  )`,
}

// OpenTestDB opens a fresh in-memory sqlite database with the full schema.
// Each call gets its own database; shared cache keeps it alive across the
// connections gorm pools.
func OpenTestDB(t *testing.T) *gorm.DB {
  t.Helper()
  n := atomic.AddInt64(&dbCounter, 1)
  dsn := fmt.Sprintf("file:smartchat_test_%d?mode=memory&cache=shared", n)
  db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
    Logger: gormlogger.Default.LogMode(gormlogger.Silent),
  })
  if err != nil {
    t.Fatalf("failed to open test database: %v", err)
  }
  for _, stmt := range schema {
    if err := db.Exec(stmt).Error; err != nil {
      t.Fatalf("failed to create test schema: %v", err)
    }
  }
  t.Cleanup(func() {
    if sqlDB, err := db.DB(); err == nil {
      _ = sqlDB.Close()
    }
  })
  return db
}

// NewTestLogger returns a quiet logger for tests.
func NewTestLogger(t *testing.T) *logger.Logger {
  t.Helper()
  log, err := logger.New("production")
  if err != nil {
    t.Fatalf("failed to init test logger: %v", err)
  }
  return log
}
