package signatures

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrSignatureNotFound indicates that no record exists for the requested id.
var ErrSignatureNotFound = errors.New("signatures: signature not found")

// Repository persists signature records. Implementations must keep Hash and
// SignedAt immutable and must never report a revoked record as verified.
type Repository interface {
	Create(ctx context.Context, record SignatureRecord) error
	Get(ctx context.Context, signatureID string) (SignatureRecord, error)
	Delete(ctx context.Context, signatureID string) error
	RecordVerification(ctx context.Context, signatureID string, verified bool, verifiedAt time.Time) error
	MarkRevoked(ctx context.Context, signatureID string, revokedAt time.Time, reason string) (bool, error)
	ListByDocument(ctx context.Context, documentID string) ([]SignatureRecord, error)
}

const (
	querySignatureID         = "id = ?"
	querySignatureNotRevoked = "id = ? AND revoked = ?"
	queryDocumentID          = "document_id = ?"
	orderSignedAtAsc         = "signed_at_ms ASC, id ASC"
)

// GormRepository stores signature records in the relational database.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository constructs a Repository backed by db.
func NewGormRepository(db *gorm.DB) (*GormRepository, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &GormRepository{db: db}, nil
}

// Create inserts a new record; it fails if the id already exists.
func (repository *GormRepository) Create(ctx context.Context, record SignatureRecord) error {
	row := rowFromRecord(record)
	return repository.db.WithContext(ctx).Create(&row).Error
}

// Get loads one record.
func (repository *GormRepository) Get(ctx context.Context, signatureID string) (SignatureRecord, error) {
	var row SignatureRow
	err := repository.db.WithContext(ctx).Where(querySignatureID, signatureID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SignatureRecord{}, ErrSignatureNotFound
	}
	if err != nil {
		return SignatureRecord{}, err
	}
	return row.record()
}

// Delete removes a record. It exists only to undo a Create whose audit event could not be written.
func (repository *GormRepository) Delete(ctx context.Context, signatureID string) error {
	return repository.db.WithContext(ctx).Where(querySignatureID, signatureID).Delete(&SignatureRow{}).Error
}

// RecordVerification stores the outcome of a verification attempt. The verified flag
// is forced to false in SQL when the row is revoked, so a revoke racing this update
// cannot be undone by it.
func (repository *GormRepository) RecordVerification(ctx context.Context, signatureID string, verified bool, verifiedAt time.Time) error {
	result := repository.db.WithContext(ctx).
		Model(&SignatureRow{}).
		Where(querySignatureID, signatureID).
		Updates(map[string]any{
			"verified":            gorm.Expr("CASE WHEN revoked THEN ? ELSE ? END", false, verified),
			"last_verified_at_ms": verifiedAt.UTC().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSignatureNotFound
	}
	return nil
}

// MarkRevoked flips a record to revoked. It reports false when the record was already
// revoked (or does not exist), which makes the transition one-way under concurrency.
func (repository *GormRepository) MarkRevoked(ctx context.Context, signatureID string, revokedAt time.Time, reason string) (bool, error) {
	result := repository.db.WithContext(ctx).
		Model(&SignatureRow{}).
		Where(querySignatureNotRevoked, signatureID, false).
		Updates(map[string]any{
			"revoked":           true,
			"revoked_at_ms":     revokedAt.UTC().UnixMilli(),
			"revocation_reason": reason,
			"verified":          false,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListByDocument returns records for a document ordered by signing time.
func (repository *GormRepository) ListByDocument(ctx context.Context, documentID string) ([]SignatureRecord, error) {
	var rows []SignatureRow
	if err := repository.db.WithContext(ctx).
		Where(queryDocumentID, documentID).
		Order(orderSignedAtAsc).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]SignatureRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.record()
		if err != nil {
			return nil, fmt.Errorf("list by document: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}
