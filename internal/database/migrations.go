package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/signatures"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillLastVerifiedAt = "2026-10-01_backfill_last_verified_at"
	migrationUnverifyRevoked        = "2026-10-02_unverify_revoked_signatures"
	migrationStripSignerProvider    = "2026-10-05_strip_signer_provider_prefix"
	legacySignerProviderPrefix      = "google:"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillLastVerifiedAt, apply: backfillLastVerifiedAt},
		{name: migrationUnverifyRevoked, apply: unverifyRevokedSignatures},
		{name: migrationStripSignerProvider, apply: stripSignerProviderPrefix},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(func(transaction *gorm.DB) error {
			if err := migration.apply(transaction); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return transaction.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		}); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before last_verified_at_ms existed were trusted on sign.
func backfillLastVerifiedAt(db *gorm.DB) error {
	return db.Model(&signatures.SignatureRow{}).
		Where("last_verified_at_ms IS NULL").
		Update("last_verified_at_ms", gorm.Expr("signed_at_ms")).Error
}

func unverifyRevokedSignatures(db *gorm.DB) error {
	return db.Model(&signatures.SignatureRow{}).
		Where("revoked = ? AND verified = ?", true, true).
		Update("verified", false).Error
}

func stripSignerProviderPrefix(db *gorm.DB) error {
	return db.Model(&signatures.SignatureRow{}).
		Where("signed_by LIKE ?", legacySignerProviderPrefix+"%").
		Update("signed_by", gorm.Expr("substr(signed_by, ?)", len(legacySignerProviderPrefix)+1)).Error
}
