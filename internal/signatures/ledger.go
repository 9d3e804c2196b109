package signatures

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/audit"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/fingerprint"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/ids"
	"go.uber.org/zap"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingRepository = errors.New("signature repository is required")
	errMissingTrail      = errors.New("audit trail is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	fieldSignatureID         = "signature_id"
	fieldDocumentID          = "document_id"
	reasonInvalidRequest     = "invalid_request"
	reasonEmptyContent       = "empty_content"
	reasonIDGeneration       = "id_generation_failed"
	reasonRecordInsert       = "record_insert_failed"
	reasonAuditAppend        = "audit_append_failed"
	reasonNotFound           = "not_found"
	reasonRecordLookup       = "record_lookup_failed"
	reasonRecordUpdate       = "record_update_failed"
	reasonQueryFailed        = "query_failed"
	reasonTrailReadFailed    = "trail_read_failed"
	reasonCompensationFailed = "compensation_failed"
)

// LedgerConfig describes the collaborators of a Ledger.
type LedgerConfig struct {
	Repository Repository
	Trail      audit.Trail
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Ledger signs documents, re-verifies them and keeps their audit trails.
type Ledger struct {
	repository Repository
	trail      audit.Trail
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewLedger validates cfg and constructs a Ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Repository == nil {
		return nil, errMissingRepository
	}
	if cfg.Trail == nil {
		return nil, errMissingTrail
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Ledger{
		repository: cfg.Repository,
		trail:      cfg.Trail,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// SignRequest carries the inputs of a signing act.
type SignRequest struct {
	Content       string
	DocumentID    string
	DocumentName  string
	SignedBy      string
	SignatureType SignatureType
	Origin        string
}

// Sign fingerprints the content, persists a verified record and appends a "signed"
// event. Either both the record and the event exist afterwards or neither does.
func (ledger *Ledger) Sign(ctx context.Context, request SignRequest) (SignatureRecord, error) {
	if request.Content == "" {
		return SignatureRecord{}, newSigningError(opSign, reasonEmptyContent, ErrEmptyContent)
	}
	documentID, err := validateIdentifier(ErrInvalidDocumentID, request.DocumentID)
	if err != nil {
		return SignatureRecord{}, newSigningError(opSign, reasonInvalidRequest, err)
	}
	signedBy, err := validateIdentifier(ErrInvalidSigner, request.SignedBy)
	if err != nil {
		return SignatureRecord{}, newSigningError(opSign, reasonInvalidRequest, err)
	}
	signatureType, err := ParseSignatureType(request.SignatureType.String())
	if err != nil {
		return SignatureRecord{}, newSigningError(opSign, reasonInvalidRequest, err)
	}

	signatureID, err := ledger.idProvider.NewID()
	if err != nil {
		ledger.logError(opSign, reasonIDGeneration, err, zap.String(fieldDocumentID, documentID))
		return SignatureRecord{}, newSigningError(opSign, reasonIDGeneration, err)
	}

	signedAt := ledger.clock().UTC()
	record := SignatureRecord{
		ID:             signatureID,
		DocumentID:     documentID,
		DocumentName:   strings.TrimSpace(request.DocumentName),
		SignedBy:       signedBy,
		SignedAt:       signedAt,
		SignatureType:  signatureType,
		Hash:           fingerprint.Compute(request.Content),
		ContentLength:  int64(len(request.Content)),
		Origin:         strings.TrimSpace(request.Origin),
		Verified:       true,
		LastVerifiedAt: &signedAt,
	}

	if err := ledger.repository.Create(ctx, record); err != nil {
		ledger.logError(opSign, reasonRecordInsert, err,
			zap.String(fieldSignatureID, signatureID),
			zap.String(fieldDocumentID, documentID))
		return SignatureRecord{}, newSigningError(opSign, reasonRecordInsert, err)
	}

	signedEvent := audit.Event{
		Timestamp: signedAt,
		Action:    audit.ActionSigned,
		Actor:     signedBy,
		Details:   fmt.Sprintf("%s signature, sha256 %s", signatureType, record.Hash),
		Origin:    record.Origin,
	}
	if err := ledger.trail.Append(ctx, signatureID, signedEvent); err != nil {
		ledger.logError(opSign, reasonAuditAppend, err,
			zap.String(fieldSignatureID, signatureID),
			zap.String(fieldDocumentID, documentID))
		if deleteErr := ledger.repository.Delete(context.WithoutCancel(ctx), signatureID); deleteErr != nil {
			ledger.logError(opSign, reasonCompensationFailed, deleteErr, zap.String(fieldSignatureID, signatureID))
		}
		return SignatureRecord{}, newSigningError(opSign, reasonAuditAppend, err)
	}

	ledger.logger.Info("document signed",
		zap.String(fieldSignatureID, signatureID),
		zap.String(fieldDocumentID, documentID),
		zap.String("hash", record.Hash.Short()),
		zap.String("signature_type", signatureType.String()))
	return record, nil
}

// VerifyRequest identifies the record to verify. A nil Content returns the last
// known outcome without recomputing anything or touching the trail.
type VerifyRequest struct {
	SignatureID string
	Content     *string
	Actor       string
	Origin      string
}

// Verify recomputes the fingerprint of the supplied content and compares it with
// the stored hash. A false result with a nil error means integrity could not be
// confirmed; a missing record is reported as a VerificationError instead.
func (ledger *Ledger) Verify(ctx context.Context, request VerifyRequest) (bool, error) {
	signatureID, err := validateIdentifier(ErrInvalidSignatureID, request.SignatureID)
	if err != nil {
		return false, newVerificationError(opVerify, reasonInvalidRequest, err)
	}
	record, err := ledger.load(ctx, opVerify, signatureID)
	if err != nil {
		return false, err
	}
	if request.Content == nil {
		return record.Trustworthy(), nil
	}

	verifiedAt := ledger.clock().UTC()
	hashMatches := record.Hash.Matches(*request.Content)
	verified := hashMatches && !record.Revoked

	event := audit.Event{
		Timestamp: verifiedAt,
		Action:    audit.ActionIntegrityFailed,
		Actor:     actorOrDefault(request.Actor),
		Details:   verificationDetails(record, *request.Content, hashMatches),
		Origin:    strings.TrimSpace(request.Origin),
	}
	if verified {
		event.Action = audit.ActionIntegrityVerified
	}
	// Flag first: a recorded integrity-failed event never sits behind a verified flag.
	if err := ledger.repository.RecordVerification(ctx, signatureID, verified, verifiedAt); err != nil {
		ledger.logError(opVerify, reasonRecordUpdate, err, zap.String(fieldSignatureID, signatureID))
		return false, newPersistenceError(opVerify, reasonRecordUpdate, err)
	}
	if err := ledger.trail.Append(ctx, signatureID, event); err != nil {
		ledger.logError(opVerify, reasonAuditAppend, err, zap.String(fieldSignatureID, signatureID))
		return false, newPersistenceError(opVerify, reasonAuditAppend, err)
	}

	if !verified {
		ledger.logger.Warn("document integrity not confirmed",
			zap.String(fieldSignatureID, signatureID),
			zap.Bool("hash_matches", hashMatches),
			zap.Bool("revoked", record.Revoked))
	}
	return verified, nil
}

// RevokeRequest identifies the record to revoke and why.
type RevokeRequest struct {
	SignatureID string
	Reason      string
	Actor       string
	Origin      string
}

// Revoke marks a record as permanently untrustworthy. Revoking an already revoked
// record is a silent no-op: no state changes and no second "revoked" event. The
// only write on that path fills in a "revoked" event missing from the trail.
func (ledger *Ledger) Revoke(ctx context.Context, request RevokeRequest) error {
	signatureID, err := validateIdentifier(ErrInvalidSignatureID, request.SignatureID)
	if err != nil {
		return newVerificationError(opRevoke, reasonInvalidRequest, err)
	}
	reason := strings.TrimSpace(request.Reason)
	if reason == "" {
		return ErrMissingRevocationReason
	}
	record, err := ledger.load(ctx, opRevoke, signatureID)
	if err != nil {
		return err
	}
	if record.Revoked {
		ledger.logger.Debug("signature already revoked", zap.String(fieldSignatureID, signatureID))
		return ledger.restoreRevokedEvent(ctx, record, request)
	}

	revokedAt := ledger.clock().UTC()
	changed, err := ledger.repository.MarkRevoked(ctx, signatureID, revokedAt, reason)
	if err != nil {
		ledger.logError(opRevoke, reasonRecordUpdate, err, zap.String(fieldSignatureID, signatureID))
		return newPersistenceError(opRevoke, reasonRecordUpdate, err)
	}
	if !changed {
		return nil
	}

	event := audit.Event{
		Timestamp: revokedAt,
		Action:    audit.ActionRevoked,
		Actor:     actorOrDefault(request.Actor),
		Details:   reason,
		Origin:    strings.TrimSpace(request.Origin),
	}
	if err := ledger.trail.Append(ctx, signatureID, event); err != nil {
		ledger.logError(opRevoke, reasonAuditAppend, err, zap.String(fieldSignatureID, signatureID))
		return newPersistenceError(opRevoke, reasonAuditAppend, err)
	}
	ledger.logger.Info("signature revoked", zap.String(fieldSignatureID, signatureID))
	return nil
}

// restoreRevokedEvent appends the "revoked" event of an already revoked record when
// an earlier Revoke updated the record but failed to write its event.
func (ledger *Ledger) restoreRevokedEvent(ctx context.Context, record SignatureRecord, request RevokeRequest) error {
	events, err := ledger.trail.Read(ctx, record.ID)
	if err != nil {
		ledger.logError(opRevoke, reasonTrailReadFailed, err, zap.String(fieldSignatureID, record.ID))
		return newPersistenceError(opRevoke, reasonTrailReadFailed, err)
	}
	for _, event := range events {
		if event.Action == audit.ActionRevoked {
			return nil
		}
	}

	revokedAt := ledger.clock().UTC()
	if record.RevokedAt != nil {
		revokedAt = *record.RevokedAt
	}
	event := audit.Event{
		Timestamp: revokedAt,
		Action:    audit.ActionRevoked,
		Actor:     actorOrDefault(request.Actor),
		Details:   record.RevocationReason,
		Origin:    strings.TrimSpace(request.Origin),
	}
	if err := ledger.trail.Append(ctx, record.ID, event); err != nil {
		ledger.logError(opRevoke, reasonAuditAppend, err, zap.String(fieldSignatureID, record.ID))
		return newPersistenceError(opRevoke, reasonAuditAppend, err)
	}
	ledger.logger.Info("revocation event restored", zap.String(fieldSignatureID, record.ID))
	return nil
}

// Get returns one record.
func (ledger *Ledger) Get(ctx context.Context, signatureID string) (SignatureRecord, error) {
	trimmed, err := validateIdentifier(ErrInvalidSignatureID, signatureID)
	if err != nil {
		return SignatureRecord{}, newVerificationError(opGet, reasonInvalidRequest, err)
	}
	return ledger.load(ctx, opGet, trimmed)
}

// ListByDocument returns the records of a document ordered by signing time. Store
// failures are logged and degrade to an empty list; only invalid input is an error.
func (ledger *Ledger) ListByDocument(ctx context.Context, documentID string) ([]SignatureRecord, error) {
	trimmed, err := validateIdentifier(ErrInvalidDocumentID, documentID)
	if err != nil {
		return nil, err
	}
	records, err := ledger.repository.ListByDocument(ctx, trimmed)
	if err != nil {
		ledger.logError(opListByDocument, reasonQueryFailed, err, zap.String(fieldDocumentID, trimmed))
		return []SignatureRecord{}, nil
	}
	return records, nil
}

// Trail returns the audit events of an existing record in insertion order.
func (ledger *Ledger) Trail(ctx context.Context, signatureID string) ([]audit.Event, error) {
	trimmed, err := validateIdentifier(ErrInvalidSignatureID, signatureID)
	if err != nil {
		return nil, newVerificationError(opTrail, reasonInvalidRequest, err)
	}
	if _, err := ledger.load(ctx, opTrail, trimmed); err != nil {
		return nil, err
	}
	events, err := ledger.trail.Read(ctx, trimmed)
	if err != nil {
		ledger.logError(opTrail, reasonTrailReadFailed, err, zap.String(fieldSignatureID, trimmed))
		return nil, newPersistenceError(opTrail, reasonTrailReadFailed, err)
	}
	return events, nil
}

func (ledger *Ledger) load(ctx context.Context, operation, signatureID string) (SignatureRecord, error) {
	record, err := ledger.repository.Get(ctx, signatureID)
	if errors.Is(err, ErrSignatureNotFound) {
		return SignatureRecord{}, newVerificationError(operation, reasonNotFound, err)
	}
	if err != nil {
		ledger.logError(operation, reasonRecordLookup, err, zap.String(fieldSignatureID, signatureID))
		return SignatureRecord{}, newPersistenceError(operation, reasonRecordLookup, err)
	}
	return record, nil
}

func (ledger *Ledger) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	ledger.logger.Error("signature ledger error", attrs...)
}

func verificationDetails(record SignatureRecord, content string, hashMatches bool) string {
	var details string
	if hashMatches {
		details = fmt.Sprintf("sha256 %s matches", record.Hash.Short())
	} else {
		details = fmt.Sprintf("sha256 %s does not match stored %s", fingerprint.Compute(content).Short(), record.Hash.Short())
	}
	if record.Revoked {
		return "signature revoked; " + details
	}
	return details
}

func actorOrDefault(actor string) string {
	trimmed := strings.TrimSpace(actor)
	if trimmed == "" {
		return "system"
	}
	return trimmed
}
