package signatures

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/fingerprint"
)

// SignatureType labels the signature tier. The tier is recorded only; it does not
// change how the ledger fingerprints or verifies content.
type SignatureType string

const (
	// SignatureTypeSimple is the default tier.
	SignatureTypeSimple SignatureType = "simple"
	// SignatureTypeAdvanced marks an advanced electronic signature.
	SignatureTypeAdvanced SignatureType = "advanced"
	// SignatureTypeQualified marks a qualified signature label.
	SignatureTypeQualified SignatureType = "qualified"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidSignatureType indicates a tier outside simple, advanced or qualified.
	ErrInvalidSignatureType = errors.New("signatures: invalid signature type")
	// ErrInvalidDocumentID indicates that a document identifier is empty or exceeds storage bounds.
	ErrInvalidDocumentID = errors.New("signatures: invalid document id")
	// ErrInvalidSignatureID indicates that a signature identifier is empty or exceeds storage bounds.
	ErrInvalidSignatureID = errors.New("signatures: invalid signature id")
	// ErrInvalidSigner indicates that the signer identity is missing.
	ErrInvalidSigner = errors.New("signatures: invalid signer")
	// ErrEmptyContent indicates an attempt to sign empty content.
	ErrEmptyContent = errors.New("signatures: empty content")
	// ErrMissingRevocationReason indicates a revoke call without a reason.
	ErrMissingRevocationReason = errors.New("signatures: revocation reason required")
)

// ParseSignatureType validates raw input. Empty input selects SignatureTypeSimple.
func ParseSignatureType(rawInput string) (SignatureType, error) {
	switch signatureType := SignatureType(strings.ToLower(strings.TrimSpace(rawInput))); signatureType {
	case "":
		return SignatureTypeSimple, nil
	case SignatureTypeSimple, SignatureTypeAdvanced, SignatureTypeQualified:
		return signatureType, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSignatureType, rawInput)
	}
}

// String returns the wire value of the tier.
func (signatureType SignatureType) String() string {
	return string(signatureType)
}

func validateIdentifier(sentinel error, rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", sentinel, maxIdentifierLength)
	}
	return trimmed, nil
}

// SignatureRecord describes one completed signing act.
type SignatureRecord struct {
	ID               string             `json:"id"`
	DocumentID       string             `json:"document_id"`
	DocumentName     string             `json:"document_name"`
	SignedBy         string             `json:"signed_by"`
	SignedAt         time.Time          `json:"signed_at"`
	SignatureType    SignatureType      `json:"signature_type"`
	Hash             fingerprint.Digest `json:"hash"`
	ContentLength    int64              `json:"content_length"`
	Origin           string             `json:"origin,omitempty"`
	Verified         bool               `json:"verified"`
	Revoked          bool               `json:"revoked"`
	RevokedAt        *time.Time         `json:"revoked_at,omitempty"`
	RevocationReason string             `json:"revocation_reason,omitempty"`
	LastVerifiedAt   *time.Time         `json:"last_verified_at,omitempty"`
}

// Trustworthy reports whether the record currently vouches for its document.
// A revoked record never does.
func (record SignatureRecord) Trustworthy() bool {
	return record.Verified && !record.Revoked
}

// SignatureRow is the persisted form of a SignatureRecord.
type SignatureRow struct {
	ID                 string `gorm:"column:id;primaryKey;size:190;not null"`
	DocumentID         string `gorm:"column:document_id;size:190;not null;index:idx_signatures_document,priority:1"`
	DocumentName       string `gorm:"column:document_name;size:512;not null;default:''"`
	SignedBy           string `gorm:"column:signed_by;size:190;not null"`
	SignedAtMillis     int64  `gorm:"column:signed_at_ms;not null;index:idx_signatures_document,priority:2"`
	SignatureType      string `gorm:"column:signature_type;size:32;not null"`
	Hash               string `gorm:"column:hash;size:64;not null;index"`
	ContentLength      int64  `gorm:"column:content_length;not null;default:0"`
	Origin             string `gorm:"column:origin;size:64;not null;default:''"`
	Verified           bool   `gorm:"column:verified;not null;default:false"`
	Revoked            bool   `gorm:"column:revoked;not null;default:false"`
	RevokedAtMillis    *int64 `gorm:"column:revoked_at_ms"`
	RevocationReason   string `gorm:"column:revocation_reason;type:text;not null;default:''"`
	LastVerifiedMillis *int64 `gorm:"column:last_verified_at_ms"`
}

// TableName provides the explicit table binding for GORM.
func (SignatureRow) TableName() string {
	return "signatures"
}

func rowFromRecord(record SignatureRecord) SignatureRow {
	return SignatureRow{
		ID:                 record.ID,
		DocumentID:         record.DocumentID,
		DocumentName:       record.DocumentName,
		SignedBy:           record.SignedBy,
		SignedAtMillis:     record.SignedAt.UTC().UnixMilli(),
		SignatureType:      record.SignatureType.String(),
		Hash:               record.Hash.String(),
		ContentLength:      record.ContentLength,
		Origin:             record.Origin,
		Verified:           record.Verified,
		Revoked:            record.Revoked,
		RevokedAtMillis:    millisPointer(record.RevokedAt),
		RevocationReason:   record.RevocationReason,
		LastVerifiedMillis: millisPointer(record.LastVerifiedAt),
	}
}

func (row SignatureRow) record() (SignatureRecord, error) {
	hash, err := fingerprint.ParseDigest(row.Hash)
	if err != nil {
		return SignatureRecord{}, fmt.Errorf("signature %s: %w", row.ID, err)
	}
	signatureType, err := ParseSignatureType(row.SignatureType)
	if err != nil {
		return SignatureRecord{}, fmt.Errorf("signature %s: %w", row.ID, err)
	}
	return SignatureRecord{
		ID:               row.ID,
		DocumentID:       row.DocumentID,
		DocumentName:     row.DocumentName,
		SignedBy:         row.SignedBy,
		SignedAt:         time.UnixMilli(row.SignedAtMillis).UTC(),
		SignatureType:    signatureType,
		Hash:             hash,
		ContentLength:    row.ContentLength,
		Origin:           row.Origin,
		Verified:         row.Verified && !row.Revoked,
		Revoked:          row.Revoked,
		RevokedAt:        timePointer(row.RevokedAtMillis),
		RevocationReason: row.RevocationReason,
		LastVerifiedAt:   timePointer(row.LastVerifiedMillis),
	}, nil
}

func millisPointer(value *time.Time) *int64 {
	if value == nil {
		return nil
	}
	millis := value.UTC().UnixMilli()
	return &millis
}

func timePointer(millis *int64) *time.Time {
	if millis == nil {
		return nil
	}
	value := time.UnixMilli(*millis).UTC()
	return &value
}
