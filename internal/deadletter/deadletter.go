// Package deadletter archives operations dropped after exhausting their
// retry budget, so a human can inspect or replay them by hand.
package deadletter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/dmeireles/writeback/internal/errors"
	"github.com/dmeireles/writeback/internal/models"
)

// EntryType tags archived entries so mixed log consumers can filter them.
const EntryType = "writeback.dlq"

const schemaVersion = "v1"

// Entry is the archived snapshot of a dropped operation.
type Entry struct {
	Type       string            `json:"type"`    // "writeback.dlq"
	Version    string            `json:"version"` // schema version
	At         string            `json:"at"`      // RFC3339 time the drop happened
	Reason     string            `json:"reason"`  // human/debug text
	Attempts   int               `json:"attempts"`
	HTTPStatus int               `json:"http_status,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
	Operation  *models.Operation `json:"operation"` // full record snapshot
}

// NewEntry builds an Entry for op at the moment it is dropped.
func NewEntry(op *models.Operation, httpStatus int, lastErr, reason string) Entry {
	return Entry{
		Type:       EntryType,
		Version:    schemaVersion,
		At:         time.Now().Format(time.RFC3339Nano),
		Reason:     reason,
		Attempts:   op.Attempts,
		HTTPStatus: httpStatus,
		LastError:  lastErr,
		Operation:  op,
	}
}

// FileSink appends entries to a JSON-lines file, one document per line.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) the archive file at path in append mode.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStore, "failed to create dead-letter directory", err)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to open dead-letter file", err)
	}
	return &FileSink{file: file}, nil
}

// Archive appends one entry and fsyncs before returning, so an archived drop
// survives an immediate crash.
func (s *FileSink) Archive(ctx context.Context, entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode dead letter", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to append dead letter", err)
	}
	if err := s.file.Sync(); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to sync dead-letter file", err)
	}
	return nil
}

// Close closes the archive file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
