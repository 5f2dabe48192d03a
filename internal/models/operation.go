// Package models provides data model definitions for the write-back queue.
package models

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/dmeireles/writeback/internal/errors"
	"github.com/dmeireles/writeback/internal/uuid"
)

// Kind classifies the intent of a pending operation.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindCustom Kind = "custom"
)

// ParseKind maps s onto a known Kind. Unrecognized values become KindCustom.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindCreate:
		return KindCreate
	case KindUpdate:
		return KindUpdate
	case KindDelete:
		return KindDelete
	default:
		return KindCustom
	}
}

// Replay priorities. Lower values replay earlier.
const (
	PriorityCritical = 1
	PriorityHigh     = 3
	PriorityDefault  = 5
	PriorityLow      = 8
)

// Operation represents one deferred write awaiting replay against the backend.
type Operation struct {
	ID         string          `db:"id" json:"id"`
	Kind       Kind            `db:"kind" json:"kind"` // create, update, delete, custom
	Method     string          `db:"method" json:"method"`
	Endpoint   string          `db:"endpoint" json:"endpoint"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"` // unix nanoseconds
	Attempts   int             `db:"attempts" json:"attempts"`
	Priority   int             `db:"priority" json:"priority"`
	EntityID   string          `db:"entity_id" json:"entity_id,omitempty"`
	EntityType string          `db:"entity_type" json:"entity_type,omitempty"`
}

// TableName returns the table name for Operation.
func (Operation) TableName() string {
	return "pending_operations"
}

// New builds an Operation ready to enqueue: fresh id and creation timestamp,
// zero attempts, default priority. Method and endpoint must be non-blank or
// an INVALID_OPERATION error is returned. Unknown kinds normalize to custom.
func New(kind Kind, method, endpoint string, payload json.RawMessage) (*Operation, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	endpoint = strings.TrimSpace(endpoint)
	if method == "" {
		return nil, apperrors.New(apperrors.ErrInvalidOperation, "operation method must not be empty")
	}
	if endpoint == "" {
		return nil, apperrors.New(apperrors.ErrInvalidOperation, "operation endpoint must not be empty")
	}

	return &Operation{
		ID:        uuid.New(),
		Kind:      ParseKind(string(kind)),
		Method:    method,
		Endpoint:  endpoint,
		Payload:   payload,
		CreatedAt: time.Now().UnixNano(),
		Attempts:  0,
		Priority:  PriorityDefault,
	}, nil
}

// WithIncrementedAttempts returns a copy with the attempt counter bumped by
// one. The receiver is left untouched.
func (o *Operation) WithIncrementedAttempts() *Operation {
	clone := *o
	clone.Attempts++
	return &clone
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (o *Operation) CreatedAtTime() time.Time {
	return time.Unix(0, o.CreatedAt)
}

// UnmarshalJSON fills queue defaults for fields older snapshots omit:
// a missing attempts reads as 0 and a missing priority as PriorityDefault.
func (o *Operation) UnmarshalJSON(data []byte) error {
	type alias Operation
	aux := struct {
		Priority *int `json:"priority"`
		*alias
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Priority == nil {
		o.Priority = PriorityDefault
	} else {
		o.Priority = *aux.Priority
	}
	return nil
}
