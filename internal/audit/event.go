package audit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action enumerates the audit actions recorded against a signature.
type Action string

const (
	// ActionCreated marks the creation of a document awaiting signature.
	ActionCreated Action = "created"
	// ActionSigned marks a completed signing act.
	ActionSigned Action = "signed"
	// ActionIntegrityVerified marks a verification whose recomputed digest matched.
	ActionIntegrityVerified Action = "integrity-verified"
	// ActionIntegrityFailed marks a verification that did not confirm integrity.
	ActionIntegrityFailed Action = "integrity-failed"
	// ActionRevoked marks the one-way revocation of a signature.
	ActionRevoked Action = "revoked"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidSignatureID indicates that a trail key is empty or exceeds storage bounds.
	ErrInvalidSignatureID = errors.New("audit: invalid signature id")
	// ErrInvalidAction indicates an action outside the known set.
	ErrInvalidAction = errors.New("audit: invalid action")
	// ErrInvalidEvent indicates an event missing its timestamp or actor.
	ErrInvalidEvent = errors.New("audit: invalid event")
)

// ParseAction validates raw input and returns an Action.
func ParseAction(rawInput string) (Action, error) {
	switch action := Action(strings.ToLower(strings.TrimSpace(rawInput))); action {
	case ActionCreated, ActionSigned, ActionIntegrityVerified, ActionIntegrityFailed, ActionRevoked:
		return action, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, rawInput)
	}
}

// String returns the wire value of the action.
func (action Action) String() string {
	return string(action)
}

// Event is one immutable entry of a signature's trail.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details,omitempty"`
	Origin    string    `json:"origin,omitempty"`
}

func validateAppend(signatureID string, event Event) error {
	trimmed := strings.TrimSpace(signatureID)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSignatureID)
	}
	if len(trimmed) > maxIdentifierLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidSignatureID, maxIdentifierLength)
	}
	if _, err := ParseAction(event.Action.String()); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	if strings.TrimSpace(event.Actor) == "" {
		return fmt.Errorf("%w: missing actor", ErrInvalidEvent)
	}
	return nil
}
