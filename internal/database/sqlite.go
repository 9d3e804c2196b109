package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/audit"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/signatures"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/signers"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/versions"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrateSchema(db); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

func migrateSchema(db *gorm.DB) error {
	return db.AutoMigrate(
		&signatures.SignatureRow{},
		&audit.EventRecord{},
		&versions.VersionRow{},
		&versions.AutoSaveRow{},
		&signers.Profile{},
		&migrationRecord{},
	)
}
