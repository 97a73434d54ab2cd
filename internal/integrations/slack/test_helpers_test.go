package slackbot

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"labelbot/internal/storage/filestore"
	sqlitedb "labelbot/internal/storage/sqlite"
	"labelbot/internal/workflow"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlitedb.InitDB(dbPath)
	if err != nil {
		t.Fatalf("init test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newTestWorkflow opens a workflow holding n samples split across labelers.
func newTestWorkflow(t *testing.T, n, labelers int) *workflow.Workflow {
	t.Helper()
	store, err := filestore.New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	wf, err := workflow.Open(store,
		workflow.WithClock(func() time.Time { return now }),
		workflow.WithLocation(time.UTC),
	)
	if err != nil {
		t.Fatalf("open workflow: %v", err)
	}
	if n == 0 {
		return wf
	}
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"instruction": "question %d", "output": "answer %d"}`, i, i)
	}
	data := "[" + strings.Join(items, ",") + "]"
	if _, err := wf.Upload([]workflow.Batch{{Name: "batch.json", Data: []byte(data)}}, "U1"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if labelers > 0 {
		if _, err := wf.Partition(labelers, "U1"); err != nil {
			t.Fatalf("partition: %v", err)
		}
	}
	return wf
}
