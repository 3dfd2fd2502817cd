// Package audit keeps the append-only record of automation actions.
//
// The log is append-only with one bounded exception: a capture record is
// inserted in a pending state before the pixel grab, then either completed
// with its bounding box or discarded entirely when the grab fails. No other
// mutation exists.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovidalb/webdesk/pkg/models"
)

// Log is a concurrency-safe in-memory action log.
type Log struct {
	mu      sync.Mutex
	records []models.ActionRecord
}

// NewLog creates an empty action log.
func NewLog() *Log {
	return &Log{}
}

// Append adds a fully-formed record and returns its action id.
func (l *Log) Append(t models.ActionType, sessionID string, details map[string]interface{}) string {
	rec := models.ActionRecord{
		ActionID:  uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      t,
		SessionID: sessionID,
		Details:   details,
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	return rec.ActionID
}

// Begin inserts a pending record whose details are filled in later via
// Complete, or removed via Discard when the operation fails.
func (l *Log) Begin(t models.ActionType, sessionID string) string {
	return l.Append(t, sessionID, map[string]interface{}{"pending": true})
}

// Complete replaces the details of a pending record.
func (l *Log) Complete(actionID string, details map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.records {
		if l.records[i].ActionID == actionID {
			l.records[i].Details = details
			return
		}
	}
}

// Discard removes a pending record whose operation failed.
func (l *Log) Discard(actionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.records[:0]
	for _, rec := range l.records {
		if rec.ActionID != actionID {
			kept = append(kept, rec)
		}
	}
	l.records = kept
}

// Records returns a snapshot of the log in append order.
func (l *Log) Records() []models.ActionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.ActionRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len reports the number of records currently in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
