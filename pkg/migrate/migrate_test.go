package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/draftsync/pkg/config"
	"github.com/angelmondragon/draftsync/pkg/db"
	"github.com/google/uuid"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	client, err := db.New(context.Background(), config.DBConfig{DSN: dsn, MaxOpenConns: 1, MaxIdleConns: 1}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	sqlDB, err := client.SQL()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	return sqlDB
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateFS(Migrations()); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestEnsureCreatesSchemaAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	sqlDB := openTestDB(t)

	if err := Ensure(ctx, sqlDB, nil); err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	if err := Ensure(ctx, sqlDB, nil); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}

	for _, table := range []string{"drafts", "draft_attachments", "sync_metadata"} {
		var name string
		err := sqlDB.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("expected table %s: %v", table, err)
		}
	}

	for _, index := range []string{
		"idx_drafts_content_type",
		"idx_drafts_status",
		"idx_drafts_created_at",
		"idx_drafts_region_id",
		"idx_drafts_content_type_status",
	} {
		var name string
		err := sqlDB.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, index).Scan(&name)
		if err != nil {
			t.Fatalf("expected index %s: %v", index, err)
		}
	}

	lines, err := Run(ctx, sqlDB, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if len(lines) != 1 || lines[0] != "20260320100000" {
		t.Fatalf("unexpected version output %v", lines)
	}
}

func TestUpgradePreservesExistingDrafts(t *testing.T) {
	ctx := context.Background()
	sqlDB := openTestDB(t)

	if err := MigrateToVersion(ctx, sqlDB, "20260301120000"); err != nil {
		t.Fatalf("migrate to first version: %v", err)
	}

	now := time.Now().UTC()
	_, err := sqlDB.ExecContext(ctx, `INSERT INTO drafts
		(id, content_type, status, retries, client_id, content_data, last_modified, created_at, updated_at)
		VALUES (?, 'post', 'failed', 2, ?, '{"text":"hi"}', ?, ?, ?)`,
		"draft-1", "client-1", now, now, now)
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	if err := Ensure(ctx, sqlDB, nil); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	var retries, uploaded int
	var status string
	err = sqlDB.QueryRowContext(ctx, `SELECT status, retries, uploaded_attachments FROM drafts WHERE id = ?`, "draft-1").
		Scan(&status, &retries, &uploaded)
	if err != nil {
		t.Fatalf("read upgraded row: %v", err)
	}
	if status != "failed" || retries != 2 || uploaded != 0 {
		t.Fatalf("unexpected upgraded row status=%s retries=%d uploaded=%d", status, retries, uploaded)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if _, err := Run(context.Background(), openTestDB(t), "redo-everything"); err == nil {
		t.Fatal("expected unsupported command error")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Draft Notes!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("unexpected dir for %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "broken.sql"), []byte("-- +goose Up"), 0o644); err != nil {
		t.Fatalf("write broken: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to fail validation")
	}
}

func TestCreateSQLMigrationNamingAndCollisions(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)

	path, err := createSQLMigrationAt(dir, "  Add Draft Notes!! ", at)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260401083000_add_draft_notes.sql" {
		t.Fatalf("unexpected file name %s", filepath.Base(path))
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "-- +goose Down") {
		t.Fatalf("missing down section:\n%s", body)
	}

	if _, err := createSQLMigrationAt(dir, "add draft notes", at); err == nil {
		t.Fatal("expected an existing file to be kept")
	}
	if _, err := createSQLMigrationAt(dir, "!!!", at); err == nil {
		t.Fatal("expected error for a name without letters")
	}
}
