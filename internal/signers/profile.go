package signers

import (
	"strings"
	"time"
)

// Profile maps a provider login to the canonical signer id recorded on signatures.
type Profile struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null" json:"provider"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null" json:"subject"`
	SignerID    string    `gorm:"column:signer_id;size:190;not null;uniqueIndex" json:"signer_id"`
	Email       string    `gorm:"column:email;size:320" json:"email,omitempty"`
	DisplayName string    `gorm:"column:display_name;size:320" json:"display_name,omitempty"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at" json:"last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName exposes the table backing signer profiles.
func (Profile) TableName() string {
	return "signer_profiles"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
