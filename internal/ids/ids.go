package ids

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Provider issues identifiers for newly created records.
type Provider interface {
	NewID() (string, error)
}

var errExhausted = errors.New("ids: sequence exhausted")

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers, which sort by creation time.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Sequence replays a fixed list of identifiers. It is meant for deterministic tests and fixtures.
type Sequence struct {
	values []string
	index  int
}

// NewSequence constructs a Sequence over values.
func NewSequence(values ...string) *Sequence {
	return &Sequence{values: append([]string(nil), values...)}
}

// NewID returns the next identifier or an error once the list is exhausted.
func (s *Sequence) NewID() (string, error) {
	if s.index >= len(s.values) {
		return "", errExhausted
	}
	value := strings.TrimSpace(s.values[s.index])
	s.index++
	return value, nil
}

