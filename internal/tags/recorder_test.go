package tags

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE tag_passages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag_uid TEXT NOT NULL,
		scanned_at TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func TestOnTagScannedInsertsOneRowPerEvent(t *testing.T) {
	db := newTestDB(t)
	rec := NewRecorder(db)
	ctx := context.Background()

	for _, uid := range []string{"04:A3:1B:22", "04:A3:1B:22", "1D:FF:00:07"} {
		if err := rec.OnTagScanned(ctx, uid); err != nil {
			t.Fatalf("scan %s: %v", uid, err)
		}
	}

	var total, repeats int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tag_passages`).Scan(&total); err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 {
		t.Fatalf("rows = %d, want 3 (one per scan, repeats included)", total)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM tag_passages WHERE tag_uid=?`, "04:A3:1B:22").Scan(&repeats); err != nil {
		t.Fatalf("count repeats: %v", err)
	}
	if repeats != 2 {
		t.Fatalf("repeat rows = %d, want 2", repeats)
	}
}

func TestOnTagScannedRejectsBlankUID(t *testing.T) {
	rec := NewRecorder(newTestDB(t))

	for _, uid := range []string{"", "   "} {
		if err := rec.OnTagScanned(context.Background(), uid); err != ErrEmptyTag {
			t.Errorf("scan %q: err = %v, want ErrEmptyTag", uid, err)
		}
	}
}
