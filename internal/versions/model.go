package versions

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

const (
	maxIdentifierLength = 190
	maxNameLength       = 256
	// AutoSaveID is the stable identifier of the auto-save slot of every document.
	AutoSaveID = "autosave"
	// DefaultMaxManual is the number of named versions retained per document.
	DefaultMaxManual = 20
	// DefaultMaxAuto is the number of timed versions retained per document.
	DefaultMaxAuto = 5
)

var (
	// ErrInvalidDocumentID indicates that a document identifier is empty or exceeds storage bounds.
	ErrInvalidDocumentID = errors.New("versions: invalid document id")
	// ErrInvalidVersionID indicates that a version identifier is empty or exceeds storage bounds.
	ErrInvalidVersionID = errors.New("versions: invalid version id")
	// ErrInvalidName indicates a manual version without a usable name.
	ErrInvalidName = errors.New("versions: invalid version name")
	// ErrInvalidLimits indicates retention caps below one.
	ErrInvalidLimits = errors.New("versions: invalid retention limits")
)

// ContractVersion is a full-text snapshot of a contract and its variable bindings.
type ContractVersion struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Name       string            `json:"name"`
	Content    string            `json:"content"`
	Timestamp  time.Time         `json:"timestamp"`
	Variables  map[string]string `json:"variables"`
	Auto       bool              `json:"auto"`
}

// Restored is the state a caller may apply when rolling back to a version.
type Restored struct {
	Content    string            `json:"content"`
	Variables  map[string]string `json:"variables"`
	DocumentID string            `json:"document_id"`
}

// Limits caps the retained versions of one document per kind.
type Limits struct {
	MaxManual int
	MaxAuto   int
}

// Total is the maximum number of retained versions, the auto-save slot excluded.
func (limits Limits) Total() int {
	return limits.MaxManual + limits.MaxAuto
}

func (limits Limits) validate() error {
	if limits.MaxManual < 1 || limits.MaxAuto < 1 {
		return fmt.Errorf("%w: manual=%d auto=%d", ErrInvalidLimits, limits.MaxManual, limits.MaxAuto)
	}
	return nil
}

// evictionCandidates returns the ids to drop from a newest-first list so that at most
// MaxManual manual and MaxAuto auto versions remain. The newest of each kind survive.
func evictionCandidates(newestFirst []ContractVersion, limits Limits) []string {
	var evicted []string
	manualKept, autoKept := 0, 0
	for _, version := range newestFirst {
		if version.Auto {
			if autoKept < limits.MaxAuto {
				autoKept++
				continue
			}
		} else if manualKept < limits.MaxManual {
			manualKept++
			continue
		}
		evicted = append(evicted, version.ID)
	}
	return evicted
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

func copyVariables(variables map[string]string) map[string]string {
	if variables == nil {
		return map[string]string{}
	}
	return maps.Clone(variables)
}
