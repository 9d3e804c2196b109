package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Trail is an append-only, insertion-ordered log of events keyed by signature id.
type Trail interface {
	Append(ctx context.Context, signatureID string, event Event) error
	Read(ctx context.Context, signatureID string) ([]Event, error)
}

// EventRecord persists one audit event as its own row. Appends are plain inserts,
// so concurrent writers to the same trail never overwrite each other.
type EventRecord struct {
	Sequence         int64  `gorm:"column:sequence;primaryKey;autoIncrement"`
	SignatureID      string `gorm:"column:signature_id;size:190;not null;index:idx_audit_signature_sequence,priority:1"`
	OccurredAtMillis int64  `gorm:"column:occurred_at_ms;not null"`
	Action           string `gorm:"column:action;size:64;not null"`
	Actor            string `gorm:"column:actor;size:190;not null"`
	Details          string `gorm:"column:details;type:text;not null;default:''"`
	Origin           string `gorm:"column:origin;size:64;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (EventRecord) TableName() string {
	return "signature_audit_events"
}

// GormTrail stores trails in the relational database.
type GormTrail struct {
	db *gorm.DB
}

// NewGormTrail constructs a Trail backed by db.
func NewGormTrail(db *gorm.DB) (*GormTrail, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: database handle is required")
	}
	return &GormTrail{db: db}, nil
}

// Append inserts the event at the end of the trail for signatureID.
func (trail *GormTrail) Append(ctx context.Context, signatureID string, event Event) error {
	if err := validateAppend(signatureID, event); err != nil {
		return err
	}
	record := EventRecord{
		SignatureID:      strings.TrimSpace(signatureID),
		OccurredAtMillis: event.Timestamp.UTC().UnixMilli(),
		Action:           event.Action.String(),
		Actor:            strings.TrimSpace(event.Actor),
		Details:          event.Details,
		Origin:           strings.TrimSpace(event.Origin),
	}
	if err := trail.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("audit: append event: %w", err)
	}
	return nil
}

// Read returns the trail in insertion order, or an empty slice when none exists.
func (trail *GormTrail) Read(ctx context.Context, signatureID string) ([]Event, error) {
	var records []EventRecord
	if err := trail.db.WithContext(ctx).
		Where("signature_id = ?", strings.TrimSpace(signatureID)).
		Order("sequence ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: read trail: %w", err)
	}
	events := make([]Event, 0, len(records))
	for _, record := range records {
		action, err := ParseAction(record.Action)
		if err != nil {
			return nil, fmt.Errorf("audit: read trail: sequence %d: %w", record.Sequence, err)
		}
		events = append(events, Event{
			Timestamp: time.UnixMilli(record.OccurredAtMillis).UTC(),
			Action:    action,
			Actor:     record.Actor,
			Details:   record.Details,
			Origin:    record.Origin,
		})
	}
	return events, nil
}
