package versions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/diff"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/ids"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingRepository = errors.New("version repository is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	defaultAutoSaveMaxTries = 5
	autoSaveName            = "Auto-save"
	autoVersionNameLayout   = "Auto-save 2006-01-02 15:04:05"
	fieldDocumentID         = "document_id"
	fieldVersionID          = "version_id"
	reasonInvalidRequest    = "invalid_request"
	reasonIDGeneration      = "id_generation_failed"
	reasonInsertFailed      = "insert_failed"
	reasonDeleteFailed      = "delete_failed"
	reasonQueryFailed       = "query_failed"
	reasonNotFound          = "not_found"
	reasonWriteFailed       = "write_failed"
)

// Config describes the collaborators and retention caps of a Store.
type Config struct {
	Repository       Repository
	Clock            func() time.Time
	IDProvider       ids.Provider
	Logger           *zap.Logger
	Limits           Limits
	AutoSaveMaxTries uint
	AutoSaveBackOff  func() backoff.BackOff
}

// Store keeps a bounded history of named snapshots plus one auto-save slot per document.
// Debouncing auto-saves is left to the caller.
type Store struct {
	repository       Repository
	clock            func() time.Time
	idProvider       ids.Provider
	logger           *zap.Logger
	limits           Limits
	autoSaveMaxTries uint
	autoSaveBackOff  func() backoff.BackOff
}

// NewStore validates cfg and constructs a Store. Zero limits select the defaults.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Repository == nil {
		return nil, errMissingRepository
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	limits := cfg.Limits
	if limits.MaxManual == 0 {
		limits.MaxManual = DefaultMaxManual
	}
	if limits.MaxAuto == 0 {
		limits.MaxAuto = DefaultMaxAuto
	}
	if err := limits.validate(); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	maxTries := cfg.AutoSaveMaxTries
	if maxTries == 0 {
		maxTries = defaultAutoSaveMaxTries
	}
	newBackOff := cfg.AutoSaveBackOff
	if newBackOff == nil {
		newBackOff = defaultAutoSaveBackOff
	}
	return &Store{
		repository:       cfg.Repository,
		clock:            clock,
		idProvider:       cfg.IDProvider,
		logger:           logger,
		limits:           limits,
		autoSaveMaxTries: maxTries,
		autoSaveBackOff:  newBackOff,
	}, nil
}

func defaultAutoSaveBackOff() backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = 20 * time.Millisecond
	exponential.MaxInterval = 250 * time.Millisecond
	return exponential
}

// Limits returns the retention caps in effect.
func (store *Store) Limits() Limits {
	return store.limits
}

// CreateVersionRequest carries the inputs of a snapshot.
type CreateVersionRequest struct {
	DocumentID string
	Name       string
	Content    string
	Variables  map[string]string
	Auto       bool
}

// CreateVersion stores a new snapshot at the head of the document's list and evicts
// the oldest entries beyond the per-kind caps in the same transaction.
func (store *Store) CreateVersion(ctx context.Context, request CreateVersionRequest) (ContractVersion, error) {
	documentID, err := validateIdentifier(ErrInvalidDocumentID, request.DocumentID)
	if err != nil {
		return ContractVersion{}, newServiceError(opCreateVersion, reasonInvalidRequest, err)
	}
	createdAt := store.clock().UTC()
	name := strings.TrimSpace(request.Name)
	if name == "" && request.Auto {
		name = createdAt.Format(autoVersionNameLayout)
	}
	if name == "" || len(name) > maxNameLength {
		return ContractVersion{}, newServiceError(opCreateVersion, reasonInvalidRequest,
			fmt.Errorf("%w: must be 1-%d characters", ErrInvalidName, maxNameLength))
	}

	versionID, err := store.idProvider.NewID()
	if err != nil {
		store.logError(opCreateVersion, reasonIDGeneration, err, zap.String(fieldDocumentID, documentID))
		return ContractVersion{}, newServiceError(opCreateVersion, reasonIDGeneration, err)
	}

	version := ContractVersion{
		ID:         versionID,
		DocumentID: documentID,
		Name:       name,
		Content:    request.Content,
		Timestamp:  createdAt,
		Variables:  copyVariables(request.Variables),
		Auto:       request.Auto,
	}
	limits := store.limits
	evicted, err := store.repository.Insert(ctx, version, func(newestFirst []ContractVersion) []string {
		return evictionCandidates(newestFirst, limits)
	})
	if err != nil {
		store.logError(opCreateVersion, reasonInsertFailed, err, zap.String(fieldDocumentID, documentID))
		return ContractVersion{}, newPersistenceError(opCreateVersion, reasonInsertFailed, err)
	}
	if len(evicted) > 0 {
		store.logger.Debug("contract versions evicted",
			zap.String(fieldDocumentID, documentID),
			zap.Strings("version_ids", evicted))
	}
	return version, nil
}

// AutoSaveRequest carries the content written to the auto-save slot.
type AutoSaveRequest struct {
	DocumentID string
	Content    string
	Variables  map[string]string
}

// AutoSave overwrites the document's auto-save slot. Concurrent writers are resolved
// with a compare-and-swap on the slot revision, retried with exponential backoff;
// the last successful writer wins.
func (store *Store) AutoSave(ctx context.Context, request AutoSaveRequest) (ContractVersion, error) {
	documentID, err := validateIdentifier(ErrInvalidDocumentID, request.DocumentID)
	if err != nil {
		return ContractVersion{}, newServiceError(opAutoSave, reasonInvalidRequest, err)
	}
	variables := copyVariables(request.Variables)

	slot, err := backoff.Retry(ctx, func() (AutoSaveSlot, error) {
		expectedRevision := int64(0)
		current, loadErr := store.repository.LoadAutoSave(ctx, documentID)
		switch {
		case loadErr == nil:
			expectedRevision = current.Revision
		case !errors.Is(loadErr, ErrAutoSaveNotFound):
			return AutoSaveSlot{}, backoff.Permanent(loadErr)
		}
		next := AutoSaveSlot{
			DocumentID: documentID,
			Content:    request.Content,
			Variables:  variables,
			SavedAt:    store.clock().UTC(),
			Revision:   expectedRevision + 1,
		}
		storeErr := store.repository.StoreAutoSave(ctx, next, expectedRevision)
		if errors.Is(storeErr, ErrRevisionConflict) {
			return AutoSaveSlot{}, storeErr
		}
		if storeErr != nil {
			return AutoSaveSlot{}, backoff.Permanent(storeErr)
		}
		return next, nil
	},
		backoff.WithBackOff(store.autoSaveBackOff()),
		backoff.WithMaxTries(store.autoSaveMaxTries),
	)
	if err != nil {
		store.logError(opAutoSave, reasonWriteFailed, err, zap.String(fieldDocumentID, documentID))
		return ContractVersion{}, newPersistenceError(opAutoSave, reasonWriteFailed, err)
	}
	return slotVersion(slot), nil
}

// DeleteVersion removes one version. Deleting a missing version is a no-op.
func (store *Store) DeleteVersion(ctx context.Context, documentID, versionID string) error {
	trimmedDocumentID, err := validateIdentifier(ErrInvalidDocumentID, documentID)
	if err != nil {
		return newServiceError(opDeleteVersion, reasonInvalidRequest, err)
	}
	trimmedVersionID, err := validateIdentifier(ErrInvalidVersionID, versionID)
	if err != nil {
		return newServiceError(opDeleteVersion, reasonInvalidRequest, err)
	}
	if _, err := store.repository.Delete(ctx, trimmedDocumentID, trimmedVersionID); err != nil {
		store.logError(opDeleteVersion, reasonDeleteFailed, err,
			zap.String(fieldDocumentID, trimmedDocumentID),
			zap.String(fieldVersionID, trimmedVersionID))
		return newPersistenceError(opDeleteVersion, reasonDeleteFailed, err)
	}
	return nil
}

// ListVersions returns the retained versions newest first. Store failures are
// logged and degrade to an empty list.
func (store *Store) ListVersions(ctx context.Context, documentID string) ([]ContractVersion, error) {
	trimmed, err := validateIdentifier(ErrInvalidDocumentID, documentID)
	if err != nil {
		return nil, newServiceError(opListVersions, reasonInvalidRequest, err)
	}
	versions, err := store.repository.List(ctx, trimmed)
	if err != nil {
		store.logError(opListVersions, reasonQueryFailed, err, zap.String(fieldDocumentID, trimmed))
		return []ContractVersion{}, nil
	}
	return versions, nil
}

// GetVersion returns one version. AutoSaveID resolves to the auto-save slot.
func (store *Store) GetVersion(ctx context.Context, documentID, versionID string) (ContractVersion, error) {
	trimmedDocumentID, err := validateIdentifier(ErrInvalidDocumentID, documentID)
	if err != nil {
		return ContractVersion{}, newServiceError(opGetVersion, reasonInvalidRequest, err)
	}
	trimmedVersionID, err := validateIdentifier(ErrInvalidVersionID, versionID)
	if err != nil {
		return ContractVersion{}, newServiceError(opGetVersion, reasonInvalidRequest, err)
	}
	if trimmedVersionID == AutoSaveID {
		return store.GetAutoSave(ctx, trimmedDocumentID)
	}
	version, err := store.repository.Get(ctx, trimmedDocumentID, trimmedVersionID)
	if errors.Is(err, ErrVersionNotFound) {
		return ContractVersion{}, newServiceError(opGetVersion, reasonNotFound, err)
	}
	if err != nil {
		store.logError(opGetVersion, reasonQueryFailed, err, zap.String(fieldDocumentID, trimmedDocumentID))
		return ContractVersion{}, newPersistenceError(opGetVersion, reasonQueryFailed, err)
	}
	return version, nil
}

// GetAutoSave returns the auto-save slot as a version with ID AutoSaveID.
func (store *Store) GetAutoSave(ctx context.Context, documentID string) (ContractVersion, error) {
	trimmed, err := validateIdentifier(ErrInvalidDocumentID, documentID)
	if err != nil {
		return ContractVersion{}, newServiceError(opGetAutoSave, reasonInvalidRequest, err)
	}
	slot, err := store.repository.LoadAutoSave(ctx, trimmed)
	if errors.Is(err, ErrAutoSaveNotFound) {
		return ContractVersion{}, newServiceError(opGetAutoSave, reasonNotFound, err)
	}
	if err != nil {
		store.logError(opGetAutoSave, reasonQueryFailed, err, zap.String(fieldDocumentID, trimmed))
		return ContractVersion{}, newPersistenceError(opGetAutoSave, reasonQueryFailed, err)
	}
	return slotVersion(slot), nil
}

// ClearAutoSave removes the auto-save slot of a document.
func (store *Store) ClearAutoSave(ctx context.Context, documentID string) error {
	trimmed, err := validateIdentifier(ErrInvalidDocumentID, documentID)
	if err != nil {
		return newServiceError(opClearAutoSave, reasonInvalidRequest, err)
	}
	if err := store.repository.DeleteAutoSave(ctx, trimmed); err != nil {
		store.logError(opClearAutoSave, reasonDeleteFailed, err, zap.String(fieldDocumentID, trimmed))
		return newPersistenceError(opClearAutoSave, reasonDeleteFailed, err)
	}
	return nil
}

// HasAutoSave reports whether the document has an auto-save slot.
func (store *Store) HasAutoSave(ctx context.Context, documentID string) (bool, error) {
	trimmed, err := validateIdentifier(ErrInvalidDocumentID, documentID)
	if err != nil {
		return false, newServiceError(opHasAutoSave, reasonInvalidRequest, err)
	}
	_, err = store.repository.LoadAutoSave(ctx, trimmed)
	if errors.Is(err, ErrAutoSaveNotFound) {
		return false, nil
	}
	if err != nil {
		store.logError(opHasAutoSave, reasonQueryFailed, err, zap.String(fieldDocumentID, trimmed))
		return false, newPersistenceError(opHasAutoSave, reasonQueryFailed, err)
	}
	return true, nil
}

// CompareVersions diffs the content of base against target.
func CompareVersions(base, target ContractVersion) diff.Comparison {
	return diff.Lines(base.Content, target.Content)
}

// RestoreVersion projects the state a caller would apply to roll back to version.
// It does not touch the store.
func RestoreVersion(version ContractVersion) Restored {
	return Restored{
		Content:    version.Content,
		Variables:  copyVariables(version.Variables),
		DocumentID: version.DocumentID,
	}
}

func slotVersion(slot AutoSaveSlot) ContractVersion {
	return ContractVersion{
		ID:         AutoSaveID,
		DocumentID: slot.DocumentID,
		Name:       autoSaveName,
		Content:    slot.Content,
		Timestamp:  slot.SavedAt,
		Variables:  copyVariables(slot.Variables),
		Auto:       true,
	}
}

func (store *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	store.logger.Error("version store error", attrs...)
}
