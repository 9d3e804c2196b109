package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/signatures"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsRepairsLegacySignatures(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := migrateSchema(database); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	legacy := []signatures.SignatureRow{
		{
			ID:             "sig-legacy",
			DocumentID:     "doc-1",
			SignedBy:       "google:12345",
			SignedAtMillis: 1700000000000,
			SignatureType:  "simple",
			Hash:           "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			Verified:       true,
		},
		{
			ID:             "sig-revoked",
			DocumentID:     "doc-1",
			SignedBy:       "user-2",
			SignedAtMillis: 1700000500000,
			SignatureType:  "simple",
			Hash:           "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			Verified:       true,
			Revoked:        true,
		},
	}
	if err := database.Create(&legacy).Error; err != nil {
		testContext.Fatalf("failed to insert legacy rows: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored signatures.SignatureRow
	if err := database.Where("id = ?", "sig-legacy").Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload signature: %v", err)
	}
	if stored.LastVerifiedMillis == nil || *stored.LastVerifiedMillis != stored.SignedAtMillis {
		testContext.Fatalf("expected last verified to be backfilled from signed at, got %v", stored.LastVerifiedMillis)
	}
	if stored.SignedBy != "12345" {
		testContext.Fatalf("expected provider prefix to be stripped, got %q", stored.SignedBy)
	}

	var revoked signatures.SignatureRow
	if err := database.Where("id = ?", "sig-revoked").Take(&revoked).Error; err != nil {
		testContext.Fatalf("failed to reload revoked signature: %v", err)
	}
	if revoked.Verified {
		testContext.Fatalf("revoked signature must not stay verified")
	}

	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if count != 3 {
		testContext.Fatalf("expected three migration records, got %d", count)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("re-applying migrations should be a no-op: %v", err)
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
	db, err := OpenSQLite(filepath.Join(testContext.TempDir(), "contracts.db"), nil)
	if err != nil {
		testContext.Fatalf("open failed: %v", err)
	}
	if !db.Migrator().HasTable(&signatures.SignatureRow{}) {
		testContext.Fatalf("expected signatures table")
	}
}
