package signatures

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/audit"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/fingerprint"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/ids"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type steppingClock struct {
	current time.Time
	step    time.Duration
}

func (c *steppingClock) Now() time.Time {
	value := c.current
	c.current = c.current.Add(c.step)
	return value
}

type ledgerFixture struct {
	ledger     *Ledger
	repository *GormRepository
	trail      *audit.GormTrail
	db         *gorm.DB
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:signatures_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&SignatureRow{}, &audit.EventRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newLedgerFixture(t *testing.T, signatureIDs ...string) ledgerFixture {
	t.Helper()
	db := openTestDatabase(t)
	repository, err := NewGormRepository(db)
	if err != nil {
		t.Fatalf("failed to construct repository: %v", err)
	}
	trail, err := audit.NewGormTrail(db)
	if err != nil {
		t.Fatalf("failed to construct trail: %v", err)
	}
	clock := &steppingClock{current: time.Unix(1700000000, 0).UTC(), step: time.Minute}
	ledger, err := NewLedger(LedgerConfig{
		Repository: repository,
		Trail:      trail,
		Clock:      clock.Now,
		IDProvider: ids.NewSequence(signatureIDs...),
	})
	if err != nil {
		t.Fatalf("failed to construct ledger: %v", err)
	}
	return ledgerFixture{ledger: ledger, repository: repository, trail: trail, db: db}
}

func contentPointer(value string) *string {
	return &value
}

func mustSign(t *testing.T, ledger *Ledger, content string) SignatureRecord {
	t.Helper()
	record, err := ledger.Sign(context.Background(), SignRequest{
		Content:       content,
		DocumentID:    "restaurant-42",
		DocumentName:  "Contrato_123",
		SignedBy:      "user-1",
		SignatureType: SignatureTypeAdvanced,
		Origin:        "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return record
}

func mustTrail(t *testing.T, fixture ledgerFixture, signatureID string) []audit.Event {
	t.Helper()
	events, err := fixture.ledger.Trail(context.Background(), signatureID)
	if err != nil {
		t.Fatalf("trail failed: %v", err)
	}
	return events
}

func TestSignPersistsVerifiedRecordAndSignedEvent(t *testing.T) {
	fixture := newLedgerFixture(t, "sig-1")
	record := mustSign(t, fixture.ledger, "A\nB\nC")

	if record.ID != "sig-1" {
		t.Fatalf("unexpected id %q", record.ID)
	}
	if !record.Verified {
		t.Fatalf("expected trust-on-sign verified record")
	}
	if record.Hash != fingerprint.Compute("A\nB\nC") {
		t.Fatalf("unexpected hash %s", record.Hash)
	}
	if record.ContentLength != 5 {
		t.Fatalf("unexpected content length %d", record.ContentLength)
	}

	stored, err := fixture.ledger.Get(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Hash != record.Hash || !stored.SignedAt.Equal(record.SignedAt) {
		t.Fatalf("stored record differs: %#v vs %#v", stored, record)
	}
	if stored.SignatureType != SignatureTypeAdvanced {
		t.Fatalf("unexpected signature type %s", stored.SignatureType)
	}

	events := mustTrail(t, fixture, "sig-1")
	if len(events) != 1 || events[0].Action != audit.ActionSigned {
		t.Fatalf("expected single signed event, got %#v", events)
	}
	if events[0].Actor != "user-1" || events[0].Origin != "203.0.113.7" {
		t.Fatalf("unexpected signed event %#v", events[0])
	}
}

func TestSignRejectsEmptyContent(t *testing.T) {
	fixture := newLedgerFixture(t, "sig-1")
	_, err := fixture.ledger.Sign(context.Background(), SignRequest{DocumentID: "doc-1", SignedBy: "user-1"})

	var signingErr *SigningError
	if !errors.As(err, &signingErr) {
		t.Fatalf("expected signing error, got %v", err)
	}
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected empty content cause, got %v", err)
	}
	if signingErr.Code() != "signatures.sign.empty_content" {
		t.Fatalf("unexpected code %s", signingErr.Code())
	}

	var count int64
	if err := fixture.db.Model(&SignatureRow{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted records, got %d", count)
	}
}

func TestSignRejectsUnknownSignatureType(t *testing.T) {
	fixture := newLedgerFixture(t, "sig-1")
	_, err := fixture.ledger.Sign(context.Background(), SignRequest{
		Content:       "body",
		DocumentID:    "doc-1",
		SignedBy:      "user-1",
		SignatureType: "notarized",
	})
	if !errors.Is(err, ErrInvalidSignatureType) {
		t.Fatalf("expected invalid signature type, got %v", err)
	}
}

func TestVerifyMatchingAndTamperedContent(t *testing.T) {
	fixture := newLedgerFixture(t, "sig-1")
	record := mustSign(t, fixture.ledger, "A\nB\nC")
	ctx := context.Background()

	verified, err := fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("A\nB\nC"), Actor: "auditor"})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !verified {
		t.Fatalf("expected matching content to verify")
	}

	verified, err = fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("A\nB\nC!")})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verified {
		t.Fatalf("expected tampered content to fail verification")
	}

	stored, err := fixture.ledger.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Verified {
		t.Fatalf("expected stored flag to reflect the failed verification")
	}
	if stored.LastVerifiedAt == nil || !stored.LastVerifiedAt.After(stored.SignedAt) {
		t.Fatalf("expected last verified timestamp to advance, got %v", stored.LastVerifiedAt)
	}
	if stored.Hash != record.Hash {
		t.Fatalf("hash must never change")
	}

	events := mustTrail(t, fixture, record.ID)
	wantActions := []audit.Action{audit.ActionSigned, audit.ActionIntegrityVerified, audit.ActionIntegrityFailed}
	if len(events) != len(wantActions) {
		t.Fatalf("expected %d events, got %d", len(wantActions), len(events))
	}
	for index, action := range wantActions {
		if events[index].Action != action {
			t.Fatalf("event %d: expected %s, got %s", index, action, events[index].Action)
		}
	}
	if events[2].Actor != "system" {
		t.Fatalf("expected default actor, got %q", events[2].Actor)
	}
}

func TestVerifyWithoutContentReturnsLastKnownFlag(t *testing.T) {
	fixture := newLedgerFixture(t, "sig-1")
	record := mustSign(t, fixture.ledger, "body")
	ctx := context.Background()

	verified, err := fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID})
	if err != nil || !verified {
		t.Fatalf("expected cached verified flag, got %v (%v)", verified, err)
	}
	if events := mustTrail(t, fixture, record.ID); len(events) != 1 {
		t.Fatalf("expected no audit event for cached verification, got %d", len(events))
	}

	if _, err := fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("other")}); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	verified, err = fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID})
	if err != nil || verified {
		t.Fatalf("expected cached flag to be false after failed verification, got %v (%v)", verified, err)
	}
}

func TestVerifyMissingRecordIsVerificationError(t *testing.T) {
	fixture := newLedgerFixture(t)
	verified, err := fixture.ledger.Verify(context.Background(), VerifyRequest{SignatureID: "missing", Content: contentPointer("x")})
	if verified {
		t.Fatalf("expected false for missing record")
	}
	var verificationErr *VerificationError
	if !errors.As(err, &verificationErr) {
		t.Fatalf("expected verification error, got %v", err)
	}
	if !errors.Is(err, ErrSignatureNotFound) {
		t.Fatalf("expected not found cause, got %v", err)
	}
	if verificationErr.Code() != "signatures.verify.not_found" {
		t.Fatalf("unexpected code %s", verificationErr.Code())
	}
}

func TestRevokedRecordNeverVerifies(t *testing.T) {
	fixture := newLedgerFixture(t, "sig-1")
	record := mustSign(t, fixture.ledger, "A\nB\nC")
	ctx := context.Background()

	if err := fixture.ledger.Revoke(ctx, RevokeRequest{SignatureID: record.ID, Reason: "superseded", Actor: "admin"}); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	verified, err := fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("A\nB\nC")})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verified {
		t.Fatalf("revoked record must not verify")
	}
	verified, err = fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID})
	if err != nil || verified {
		t.Fatalf("revoked record must not report cached verification, got %v (%v)", verified, err)
	}

	stored, err := fixture.ledger.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !stored.Revoked || stored.RevokedAt == nil || stored.RevocationReason != "superseded" {
		t.Fatalf("unexpected revocation state %#v", stored)
	}
	if stored.Verified {
		t.Fatalf("revoked record stored as verified")
	}
}

func TestRevokeTwiceDoesNotDuplicateEvents(t *testing.T) {
	fixture := newLedgerFixture(t, "sig-1")
	record := mustSign(t, fixture.ledger, "body")
	ctx := context.Background()

	if err := fixture.ledger.Revoke(ctx, RevokeRequest{SignatureID: record.ID, Reason: "first"}); err != nil {
		t.Fatalf("first revoke failed: %v", err)
	}
	first, err := fixture.ledger.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if err := fixture.ledger.Revoke(ctx, RevokeRequest{SignatureID: record.ID, Reason: "second"}); err != nil {
		t.Fatalf("second revoke should be ignored, got %v", err)
	}
	second, err := fixture.ledger.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if second.RevocationReason != "first" || !second.RevokedAt.Equal(*first.RevokedAt) {
		t.Fatalf("second revoke changed state: %#v", second)
	}

	revokedEvents := 0
	for _, event := range mustTrail(t, fixture, record.ID) {
		if event.Action == audit.ActionRevoked {
			revokedEvents++
		}
	}
	if revokedEvents != 1 {
		t.Fatalf("expected exactly one revoked event, got %d", revokedEvents)
	}
}

func TestRevokeRequiresReason(t *testing.T) {
	fixture := newLedgerFixture(t, "sig-1")
	record := mustSign(t, fixture.ledger, "body")
	err := fixture.ledger.Revoke(context.Background(), RevokeRequest{SignatureID: record.ID, Reason: "  "})
	if !errors.Is(err, ErrMissingRevocationReason) {
		t.Fatalf("expected missing reason error, got %v", err)
	}
}

func TestAuditTrailGrowsMonotonically(t *testing.T) {
	fixture := newLedgerFixture(t, "sig-1")
	record := mustSign(t, fixture.ledger, "body")
	ctx := context.Background()

	previous := mustTrail(t, fixture, record.ID)
	steps := []func() error{
		func() error {
			_, err := fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("body")})
			return err
		},
		func() error {
			_, err := fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("changed")})
			return err
		},
		func() error {
			return fixture.ledger.Revoke(ctx, RevokeRequest{SignatureID: record.ID, Reason: "stop"})
		},
		func() error {
			return fixture.ledger.Revoke(ctx, RevokeRequest{SignatureID: record.ID, Reason: "again"})
		},
		func() error {
			_, err := fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("body")})
			return err
		},
	}
	for index, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", index, err)
		}
		current := mustTrail(t, fixture, record.ID)
		if len(current) < len(previous) {
			t.Fatalf("step %d: trail shrank from %d to %d", index, len(previous), len(current))
		}
		for position := range previous {
			if current[position] != previous[position] {
				t.Fatalf("step %d: event %d changed from %#v to %#v", index, position, previous[position], current[position])
			}
		}
		previous = current
	}
}

func TestTamperThenRevokeScenario(t *testing.T) {
	fixture := newLedgerFixture(t, "sig-contrato")
	record := mustSign(t, fixture.ledger, "A\nB\nC")
	ctx := context.Background()
	if !record.Verified {
		t.Fatalf("expected signed record to be verified")
	}

	verified, err := fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("A\nX\nC")})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verified {
		t.Fatalf("tampered content must not verify")
	}
	events := mustTrail(t, fixture, record.ID)
	if len(events) != 2 || events[0].Action != audit.ActionSigned || events[1].Action != audit.ActionIntegrityFailed {
		t.Fatalf("unexpected trail after tampering: %#v", events)
	}

	if err := fixture.ledger.Revoke(ctx, RevokeRequest{SignatureID: record.ID, Reason: "tampering detected"}); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	verified, err = fixture.ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("A\nB\nC")})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verified {
		t.Fatalf("revoked record verified against original content")
	}
}

func TestListByDocumentIsStable(t *testing.T) {
	fixture := newLedgerFixture(t, "sig-1", "sig-2")
	first := mustSign(t, fixture.ledger, "one")
	second := mustSign(t, fixture.ledger, "two")
	ctx := context.Background()

	for attempt := 0; attempt < 2; attempt++ {
		records, err := fixture.ledger.ListByDocument(ctx, "restaurant-42")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(records) != 2 || records[0].ID != first.ID || records[1].ID != second.ID {
			t.Fatalf("unexpected listing %#v", records)
		}
	}

	empty, err := fixture.ledger.ListByDocument(ctx, "other-document")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty listing, got %#v (%v)", empty, err)
	}
}

type failingTrail struct {
	appendErr error
}

func (trail failingTrail) Append(context.Context, string, audit.Event) error {
	return trail.appendErr
}

func (trail failingTrail) Read(context.Context, string) ([]audit.Event, error) {
	return nil, trail.appendErr
}

func TestSignRollsBackRecordWhenAuditAppendFails(t *testing.T) {
	db := openTestDatabase(t)
	repository, err := NewGormRepository(db)
	if err != nil {
		t.Fatalf("repository: %v", err)
	}
	core, logs := observer.New(zapcore.ErrorLevel)
	ledger, err := NewLedger(LedgerConfig{
		Repository: repository,
		Trail:      failingTrail{appendErr: errors.New("trail offline")},
		IDProvider: ids.NewSequence("sig-1"),
		Logger:     zap.New(core),
	})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	_, err = ledger.Sign(context.Background(), SignRequest{Content: "body", DocumentID: "doc-1", SignedBy: "user-1"})
	var signingErr *SigningError
	if !errors.As(err, &signingErr) {
		t.Fatalf("expected signing error, got %v", err)
	}
	if signingErr.Code() != "signatures.sign.audit_append_failed" {
		t.Fatalf("unexpected code %s", signingErr.Code())
	}
	if _, err := repository.Get(context.Background(), "sig-1"); !errors.Is(err, ErrSignatureNotFound) {
		t.Fatalf("expected record to be rolled back, got %v", err)
	}
	if logs.FilterMessage("signature ledger error").Len() == 0 {
		t.Fatalf("expected ledger error to be logged")
	}
}

type unavailableRepository struct {
	err error
}

func (repository unavailableRepository) Create(context.Context, SignatureRecord) error {
	return repository.err
}

func (repository unavailableRepository) Get(context.Context, string) (SignatureRecord, error) {
	return SignatureRecord{}, repository.err
}

func (repository unavailableRepository) Delete(context.Context, string) error {
	return repository.err
}

func (repository unavailableRepository) RecordVerification(context.Context, string, bool, time.Time) error {
	return repository.err
}

func (repository unavailableRepository) MarkRevoked(context.Context, string, time.Time, string) (bool, error) {
	return false, repository.err
}

func (repository unavailableRepository) ListByDocument(context.Context, string) ([]SignatureRecord, error) {
	return nil, repository.err
}

func TestUnavailableRepositorySurfacesPersistenceErrors(t *testing.T) {
	storeErr := errors.New("database is locked")
	ledger, err := NewLedger(LedgerConfig{
		Repository: unavailableRepository{err: storeErr},
		Trail:      failingTrail{},
		IDProvider: ids.NewSequence("sig-1"),
	})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	ctx := context.Background()

	_, err = ledger.Verify(ctx, VerifyRequest{SignatureID: "sig-1", Content: contentPointer("x")})
	var persistenceErr *PersistenceError
	if !errors.As(err, &persistenceErr) || !errors.Is(err, storeErr) {
		t.Fatalf("expected persistence error wrapping store error, got %v", err)
	}
	var verificationErr *VerificationError
	if errors.As(err, &verificationErr) {
		t.Fatalf("store outage must not look like a missing record")
	}

	if _, err := ledger.Sign(ctx, SignRequest{Content: "x", DocumentID: "doc-1", SignedBy: "user-1"}); !errors.Is(err, storeErr) {
		t.Fatalf("expected sign to surface store error, got %v", err)
	}

	records, err := ledger.ListByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("listing should degrade instead of failing, got %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty listing, got %#v", records)
	}
}

type flakyRepository struct {
	*GormRepository
	recordVerificationErr error
}

func (repository *flakyRepository) RecordVerification(ctx context.Context, signatureID string, verified bool, verifiedAt time.Time) error {
	if repository.recordVerificationErr != nil {
		return repository.recordVerificationErr
	}
	return repository.GormRepository.RecordVerification(ctx, signatureID, verified, verifiedAt)
}

type switchableTrail struct {
	audit.Trail
	appendErr error
}

func (trail *switchableTrail) Append(ctx context.Context, signatureID string, event audit.Event) error {
	if trail.appendErr != nil {
		return trail.appendErr
	}
	return trail.Trail.Append(ctx, signatureID, event)
}

func newFlakyLedger(t *testing.T, repository *flakyRepository, trail *switchableTrail) *Ledger {
	t.Helper()
	clock := &steppingClock{current: time.Unix(1700000000, 0).UTC(), step: time.Minute}
	ledger, err := NewLedger(LedgerConfig{
		Repository: repository,
		Trail:      trail,
		Clock:      clock.Now,
		IDProvider: ids.NewSequence("sig-1"),
	})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	return ledger
}

func TestVerifyFlagWriteFailureLeavesTrailAndFlagInStep(t *testing.T) {
	fixture := newLedgerFixture(t)
	repository := &flakyRepository{GormRepository: fixture.repository}
	trail := &switchableTrail{Trail: fixture.trail}
	ledger := newFlakyLedger(t, repository, trail)
	ctx := context.Background()
	record := mustSign(t, ledger, "A\nB\nC")

	repository.recordVerificationErr = errors.New("database is locked")
	verified, err := ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("A\nX\nC")})
	var persistenceErr *PersistenceError
	if verified || !errors.As(err, &persistenceErr) {
		t.Fatalf("expected persistence error, got %v (%v)", verified, err)
	}
	if persistenceErr.Code() != "signatures.verify.record_update_failed" {
		t.Fatalf("unexpected code %s", persistenceErr.Code())
	}
	events := mustTrail(t, fixture, record.ID)
	if len(events) != 1 || events[0].Action != audit.ActionSigned {
		t.Fatalf("no integrity event may be recorded without the flag, got %+v", events)
	}

	repository.recordVerificationErr = nil
	verified, err = ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("A\nX\nC")})
	if err != nil || verified {
		t.Fatalf("retry must report tampering, got %v (%v)", verified, err)
	}
	verified, err = ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID})
	if err != nil || verified {
		t.Fatalf("cached flag must report tampering, got %v (%v)", verified, err)
	}
}

func TestVerifyAppendFailureKeepsFailedFlag(t *testing.T) {
	fixture := newLedgerFixture(t)
	repository := &flakyRepository{GormRepository: fixture.repository}
	trail := &switchableTrail{Trail: fixture.trail}
	ledger := newFlakyLedger(t, repository, trail)
	ctx := context.Background()
	record := mustSign(t, ledger, "A\nB\nC")

	trail.appendErr = errors.New("trail offline")
	if _, err := ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID, Content: contentPointer("A\nX\nC")}); err == nil {
		t.Fatalf("expected append failure to surface")
	}
	verified, err := ledger.Verify(ctx, VerifyRequest{SignatureID: record.ID})
	if err != nil || verified {
		t.Fatalf("detected tampering must stay visible, got %v (%v)", verified, err)
	}
}

func TestRevokeRestoresMissingRevokedEvent(t *testing.T) {
	fixture := newLedgerFixture(t)
	repository := &flakyRepository{GormRepository: fixture.repository}
	trail := &switchableTrail{Trail: fixture.trail}
	ledger := newFlakyLedger(t, repository, trail)
	ctx := context.Background()
	record := mustSign(t, ledger, "body")

	trail.appendErr = errors.New("trail offline")
	var persistenceErr *PersistenceError
	if err := ledger.Revoke(ctx, RevokeRequest{SignatureID: record.ID, Reason: "superseded"}); !errors.As(err, &persistenceErr) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	stored, err := ledger.Get(ctx, record.ID)
	if err != nil || !stored.Revoked {
		t.Fatalf("record must stay revoked, got %#v (%v)", stored, err)
	}
	if events := mustTrail(t, fixture, record.ID); len(events) != 1 {
		t.Fatalf("expected only the signed event, got %+v", events)
	}

	trail.appendErr = nil
	if err := ledger.Revoke(ctx, RevokeRequest{SignatureID: record.ID, Reason: "retry", Actor: "admin"}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if err := ledger.Revoke(ctx, RevokeRequest{SignatureID: record.ID, Reason: "again"}); err != nil {
		t.Fatalf("third revoke failed: %v", err)
	}
	events := mustTrail(t, fixture, record.ID)
	if len(events) != 2 || events[1].Action != audit.ActionRevoked {
		t.Fatalf("expected one restored revoked event, got %+v", events)
	}
	if events[1].Details != "superseded" || !events[1].Timestamp.Equal(*stored.RevokedAt) {
		t.Fatalf("restored event must carry the original revocation, got %+v", events[1])
	}
}
