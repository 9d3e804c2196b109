package versions

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoSaveSlot is the single, overwritten auto-save of one document. Revision
// increases by one on every write and guards concurrent writers.
type AutoSaveSlot struct {
	DocumentID string
	Content    string
	Variables  map[string]string
	SavedAt    time.Time
	Revision   int64
}

// EvictionPolicy selects the ids to remove from a newest-first version list.
type EvictionPolicy func(newestFirst []ContractVersion) []string

// Repository persists the capped version list and the auto-save slot of documents.
type Repository interface {
	// Insert stores version and then removes whatever evict selects, atomically.
	Insert(ctx context.Context, version ContractVersion, evict EvictionPolicy) ([]string, error)
	Delete(ctx context.Context, documentID, versionID string) (bool, error)
	List(ctx context.Context, documentID string) ([]ContractVersion, error)
	Get(ctx context.Context, documentID, versionID string) (ContractVersion, error)
	LoadAutoSave(ctx context.Context, documentID string) (AutoSaveSlot, error)
	// StoreAutoSave writes slot only if the stored revision equals expectedRevision
	// (zero meaning no slot yet); otherwise it returns ErrRevisionConflict.
	StoreAutoSave(ctx context.Context, slot AutoSaveSlot, expectedRevision int64) error
	DeleteAutoSave(ctx context.Context, documentID string) error
}

// VersionRow is the persisted form of a ContractVersion.
type VersionRow struct {
	ID              string            `gorm:"column:id;primaryKey;size:190;not null"`
	DocumentID      string            `gorm:"column:document_id;size:190;not null;index:idx_versions_document_position,priority:1"`
	Position        int64             `gorm:"column:position;not null;index:idx_versions_document_position,priority:2"`
	Name            string            `gorm:"column:name;size:256;not null"`
	Content         string            `gorm:"column:content;type:text;not null"`
	Variables       map[string]string `gorm:"column:variables_json;type:text;serializer:json"`
	CreatedAtMillis int64             `gorm:"column:created_at_ms;not null"`
	Auto            bool              `gorm:"column:auto;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (VersionRow) TableName() string {
	return "contract_versions"
}

func (row VersionRow) version() ContractVersion {
	return ContractVersion{
		ID:         row.ID,
		DocumentID: row.DocumentID,
		Name:       row.Name,
		Content:    row.Content,
		Timestamp:  time.UnixMilli(row.CreatedAtMillis).UTC(),
		Variables:  copyVariables(row.Variables),
		Auto:       row.Auto,
	}
}

// AutoSaveRow is the persisted auto-save slot, one row per document.
type AutoSaveRow struct {
	DocumentID    string            `gorm:"column:document_id;primaryKey;size:190;not null"`
	Content       string            `gorm:"column:content;type:text;not null"`
	Variables     map[string]string `gorm:"column:variables_json;type:text;serializer:json"`
	SavedAtMillis int64             `gorm:"column:saved_at_ms;not null"`
	Revision      int64             `gorm:"column:revision;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AutoSaveRow) TableName() string {
	return "contract_autosaves"
}

const (
	queryDocumentID          = "document_id = ?"
	queryDocumentVersion     = "document_id = ? AND id = ?"
	queryDocumentRevision    = "document_id = ? AND revision = ?"
	orderPositionDesc        = "position DESC"
	selectMaxPosition        = "COALESCE(MAX(position), 0)"
	columnContent            = "content"
	columnVariables          = "variables_json"
	columnSavedAt            = "saved_at_ms"
	columnRevision           = "revision"
	lockingStrengthForUpdate = "UPDATE"
)

// GormRepository stores versions in the relational database.
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

// Insert appends version at the head of its document's list and applies evict.
func (repository *GormRepository) Insert(ctx context.Context, version ContractVersion, evict EvictionPolicy) ([]string, error) {
	var evicted []string
	err := repository.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		var maxPosition int64
		if err := transaction.Model(&VersionRow{}).
			Clauses(clause.Locking{Strength: lockingStrengthForUpdate}).
			Where(queryDocumentID, version.DocumentID).
			Select(selectMaxPosition).
			Scan(&maxPosition).Error; err != nil {
			return err
		}
		row := VersionRow{
			ID:              version.ID,
			DocumentID:      version.DocumentID,
			Position:        maxPosition + 1,
			Name:            version.Name,
			Content:         version.Content,
			Variables:       copyVariables(version.Variables),
			CreatedAtMillis: version.Timestamp.UTC().UnixMilli(),
			Auto:            version.Auto,
		}
		if err := transaction.Create(&row).Error; err != nil {
			return err
		}
		if evict == nil {
			return nil
		}
		var rows []VersionRow
		if err := transaction.Where(queryDocumentID, version.DocumentID).Order(orderPositionDesc).Find(&rows).Error; err != nil {
			return err
		}
		current := make([]ContractVersion, 0, len(rows))
		for _, stored := range rows {
			current = append(current, stored.version())
		}
		evicted = evict(current)
		if len(evicted) == 0 {
			return nil
		}
		return transaction.Where("document_id = ? AND id IN ?", version.DocumentID, evicted).Delete(&VersionRow{}).Error
	})
	if err != nil {
		return nil, err
	}
	return evicted, nil
}

// Delete removes one version and reports whether it existed.
func (repository *GormRepository) Delete(ctx context.Context, documentID, versionID string) (bool, error) {
	result := repository.db.WithContext(ctx).Where(queryDocumentVersion, documentID, versionID).Delete(&VersionRow{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// List returns the versions of a document newest first.
func (repository *GormRepository) List(ctx context.Context, documentID string) ([]ContractVersion, error) {
	var rows []VersionRow
	if err := repository.db.WithContext(ctx).Where(queryDocumentID, documentID).Order(orderPositionDesc).Find(&rows).Error; err != nil {
		return nil, err
	}
	versions := make([]ContractVersion, 0, len(rows))
	for _, row := range rows {
		versions = append(versions, row.version())
	}
	return versions, nil
}

// Get loads one version.
func (repository *GormRepository) Get(ctx context.Context, documentID, versionID string) (ContractVersion, error) {
	var row VersionRow
	err := repository.db.WithContext(ctx).Where(queryDocumentVersion, documentID, versionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ContractVersion{}, ErrVersionNotFound
	}
	if err != nil {
		return ContractVersion{}, err
	}
	return row.version(), nil
}

// LoadAutoSave loads the slot of a document.
func (repository *GormRepository) LoadAutoSave(ctx context.Context, documentID string) (AutoSaveSlot, error) {
	var row AutoSaveRow
	err := repository.db.WithContext(ctx).Where(queryDocumentID, documentID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AutoSaveSlot{}, ErrAutoSaveNotFound
	}
	if err != nil {
		return AutoSaveSlot{}, err
	}
	return AutoSaveSlot{
		DocumentID: row.DocumentID,
		Content:    row.Content,
		Variables:  copyVariables(row.Variables),
		SavedAt:    time.UnixMilli(row.SavedAtMillis).UTC(),
		Revision:   row.Revision,
	}, nil
}

// StoreAutoSave performs a compare-and-swap on the slot revision.
func (repository *GormRepository) StoreAutoSave(ctx context.Context, slot AutoSaveSlot, expectedRevision int64) error {
	row := AutoSaveRow{
		DocumentID:    slot.DocumentID,
		Content:       slot.Content,
		Variables:     copyVariables(slot.Variables),
		SavedAtMillis: slot.SavedAt.UTC().UnixMilli(),
		Revision:      slot.Revision,
	}
	database := repository.db.WithContext(ctx)
	if expectedRevision == 0 {
		result := database.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRevisionConflict
		}
		return nil
	}
	result := database.Model(&AutoSaveRow{}).
		Where(queryDocumentRevision, slot.DocumentID, expectedRevision).
		Select(columnContent, columnVariables, columnSavedAt, columnRevision).
		Updates(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRevisionConflict
	}
	return nil
}

// DeleteAutoSave removes the slot of a document; removing a missing slot is not an error.
func (repository *GormRepository) DeleteAutoSave(ctx context.Context, documentID string) error {
	return repository.db.WithContext(ctx).Where(queryDocumentID, documentID).Delete(&AutoSaveRow{}).Error
}
