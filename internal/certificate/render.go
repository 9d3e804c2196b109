// Package certificate renders signature records and their audit trails as
// markdown certificates and publishes them to a blob store.
package certificate

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/contracts/backend/internal/audit"
	"github.com/MarcoPoloResearchLab/contracts/backend/internal/signatures"
	"github.com/dustin/go-humanize"
)

const (
	timestampLayout = "2006-01-02 15:04:05 MST"
	emptyCell       = "-"
)

const (
	// StatusVerified labels a record whose last integrity check passed.
	StatusVerified = "Verified"
	// StatusTampered labels a record whose content no longer matches its hash.
	StatusTampered = "Integrity check failed"
	// StatusRevoked labels a revoked record regardless of its hash.
	StatusRevoked = "Revoked"
)

// Signer is the display identity printed next to the signer id.
type Signer struct {
	ID          string
	DisplayName string
	Email       string
}

func (signer Signer) label() string {
	name := strings.TrimSpace(signer.DisplayName)
	email := strings.TrimSpace(signer.Email)
	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s <%s> (%s)", name, email, signer.ID)
	case name != "":
		return fmt.Sprintf("%s (%s)", name, signer.ID)
	case email != "":
		return fmt.Sprintf("%s (%s)", email, signer.ID)
	default:
		return signer.ID
	}
}

// Status summarizes the verification state of a record.
func Status(record signatures.SignatureRecord) string {
	switch {
	case record.Revoked:
		return StatusRevoked
	case record.Verified:
		return StatusVerified
	default:
		return StatusTampered
	}
}

// Render formats record and trail as a markdown certificate. The output depends
// only on its arguments.
func Render(record signatures.SignatureRecord, trail []audit.Event) string {
	return RenderFor(record, trail, Signer{ID: record.SignedBy})
}

// RenderFor is Render with a resolved signer identity.
func RenderFor(record signatures.SignatureRecord, trail []audit.Event, signer Signer) string {
	if strings.TrimSpace(signer.ID) == "" {
		signer.ID = record.SignedBy
	}

	var builder strings.Builder
	builder.WriteString("# Signature Certificate\n\n")
	builder.WriteString("| Field | Value |\n")
	builder.WriteString("|-------|-------|\n")
	writeRow(&builder, "Document ID", record.DocumentID)
	writeRow(&builder, "Document name", record.DocumentName)
	writeRow(&builder, "Signature ID", record.ID)
	writeRow(&builder, "SHA-256", record.Hash.String())
	writeRow(&builder, "Signed by", signer.label())
	writeRow(&builder, "Signed at", formatTimestamp(record.SignedAt))
	writeRow(&builder, "Signature type", record.SignatureType.String())
	writeRow(&builder, "Status", Status(record))
	writeRow(&builder, "Content size", humanize.Bytes(uint64(max(record.ContentLength, 0))))
	writeRow(&builder, "Last verified", formatOptionalTimestamp(record.LastVerifiedAt))
	if record.Revoked {
		writeRow(&builder, "Revoked at", formatOptionalTimestamp(record.RevokedAt))
		writeRow(&builder, "Revocation reason", record.RevocationReason)
	}

	builder.WriteString("\n## Audit trail\n\n")
	builder.WriteString("| # | Timestamp | Action | Actor | Details | Origin |\n")
	builder.WriteString("|---|-----------|--------|-------|---------|--------|\n")
	for index, event := range chronological(trail) {
		builder.WriteString("| ")
		builder.WriteString(strings.Join([]string{
			strconv.Itoa(index + 1),
			formatTimestamp(event.Timestamp),
			cell(string(event.Action)),
			cell(event.Actor),
			cell(event.Details),
			cell(event.Origin),
		}, " | "))
		builder.WriteString(" |\n")
	}
	if len(trail) == 0 {
		builder.WriteString("| - | - | - | - | - | - |\n")
	}
	return builder.String()
}

func chronological(trail []audit.Event) []audit.Event {
	ordered := slices.Clone(trail)
	slices.SortStableFunc(ordered, func(left, right audit.Event) int {
		return left.Timestamp.Compare(right.Timestamp)
	})
	return ordered
}

func writeRow(builder *strings.Builder, field, value string) {
	builder.WriteString("| ")
	builder.WriteString(field)
	builder.WriteString(" | ")
	builder.WriteString(cell(value))
	builder.WriteString(" |\n")
}

func cell(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return emptyCell
	}
	trimmed = strings.ReplaceAll(trimmed, "\r\n", " ")
	trimmed = strings.ReplaceAll(trimmed, "\n", " ")
	return strings.ReplaceAll(trimmed, "|", `\|`)
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return emptyCell
	}
	return value.UTC().Format(timestampLayout)
}

func formatOptionalTimestamp(value *time.Time) string {
	if value == nil {
		return emptyCell
	}
	return formatTimestamp(*value)
}
