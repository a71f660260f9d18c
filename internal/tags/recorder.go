// apps/go-server/internal/tags/recorder.go
//
// NFC tag passage log. A passage is a raw tag identifier arriving as an
// external event; the recorder inserts one row per scan and does nothing
// else. Validation of the tag against a player roster belongs to whoever
// consumes the table.

package tags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyTag is returned when a scan event arrives without a tag UID.
var ErrEmptyTag = errors.New("empty tag uid")

// Recorder appends tag scan events to the passage log.
type Recorder struct{ db *sql.DB }

// NewRecorder wraps an open database handle.
func NewRecorder(db *sql.DB) *Recorder { return &Recorder{db: db} }

// OnTagScanned inserts one passage row for the scanned tag.
func (r *Recorder) OnTagScanned(ctx context.Context, tagUID string) error {
	tagUID = strings.TrimSpace(tagUID)
	if tagUID == "" {
		return ErrEmptyTag
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tag_passages(tag_uid, scanned_at) VALUES(?,?)`,
		tagUID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert passage: %w", err)
	}
	return nil
}
