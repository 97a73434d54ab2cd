package sqlite

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS label_events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		sample_index INTEGER NOT NULL,
		label        TEXT NOT NULL DEFAULT '',
		labeler      TEXT NOT NULL DEFAULT '',
		actor        TEXT DEFAULT '',
		created_at   DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_label_events_sample ON label_events(sample_index);
	CREATE INDEX IF NOT EXISTS idx_label_events_created ON label_events(created_at);

	CREATE TABLE IF NOT EXISTS upload_batches (
		id           TEXT PRIMARY KEY,
		file_name    TEXT NOT NULL,
		sample_count INTEGER NOT NULL,
		first_index  INTEGER NOT NULL,
		uploaded_by  TEXT DEFAULT '',
		uploaded_at  DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS partition_runs (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		num_labelers  INTEGER NOT NULL,
		total_samples INTEGER NOT NULL,
		created_by    TEXT DEFAULT '',
		created_at    DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS labeler_bindings (
		slack_user_id TEXT PRIMARY KEY,
		labeler_id    TEXT NOT NULL,
		bound_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_labeler_bindings_labeler ON labeler_bindings(labeler_id);

	CREATE TABLE IF NOT EXISTS label_suggestions (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		sample_index INTEGER NOT NULL,
		label        TEXT NOT NULL,
		confidence   REAL NOT NULL,
		llm_provider TEXT DEFAULT '',
		llm_model    TEXT DEFAULT '',
		created_at   DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_label_suggestions_sample ON label_suggestions(sample_index);

	CREATE TABLE IF NOT EXISTS store_resets (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		reset_by   TEXT DEFAULT '',
		created_at DATETIME NOT NULL
	);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}

	// Migration: add removed_files column to store_resets if missing.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('store_resets') WHERE name = 'removed_files'`).Scan(&colCount)
	if colCount == 0 {
		_, _ = db.Exec(`ALTER TABLE store_resets ADD COLUMN removed_files INTEGER DEFAULT 0`)
	}

	return db, nil
}

// --- Label events ---

type LabelEvent struct {
	ID          int64
	SampleIndex int
	Label       string // empty when the label was cleared
	Labeler     string
	Actor       string // Slack user id that performed the action
	CreatedAt   time.Time
}

func InsertLabelEvent(db *sql.DB, e LabelEvent) error {
	_, err := db.Exec(
		`INSERT INTO label_events (sample_index, label, labeler, actor, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.SampleIndex, e.Label, e.Labeler, e.Actor, e.CreatedAt,
	)
	return err
}

func GetLabelHistory(db *sql.DB, sampleIndex, limit int) ([]LabelEvent, error) {
	rows, err := db.Query(
		`SELECT id, sample_index, label, labeler, actor, created_at
		 FROM label_events
		 WHERE sample_index = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		sampleIndex, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LabelEvent
	for rows.Next() {
		var e LabelEvent
		if err := rows.Scan(&e.ID, &e.SampleIndex, &e.Label, &e.Labeler, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type LabelerActivity struct {
	Labeler string
	Labeled int
	Cleared int
}

func GetLabelerActivity(db *sql.DB, since time.Time) ([]LabelerActivity, error) {
	rows, err := db.Query(
		`SELECT labeler,
		        COALESCE(SUM(CASE WHEN label <> '' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN label = '' THEN 1 ELSE 0 END), 0)
		 FROM label_events
		 WHERE created_at >= ?
		 GROUP BY labeler
		 ORDER BY labeler`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LabelerActivity
	for rows.Next() {
		var a LabelerActivity
		if err := rows.Scan(&a.Labeler, &a.Labeled, &a.Cleared); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Upload batches ---

type UploadBatch struct {
	ID          string
	FileName    string
	SampleCount int
	FirstIndex  int
	UploadedBy  string
	UploadedAt  time.Time
}

// InsertUploadBatch records a batch and returns its generated id.
func InsertUploadBatch(db *sql.DB, b UploadBatch) (string, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := db.Exec(
		`INSERT INTO upload_batches (id, file_name, sample_count, first_index, uploaded_by, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.FileName, b.SampleCount, b.FirstIndex, b.UploadedBy, b.UploadedAt,
	)
	return b.ID, err
}

func GetRecentUploadBatches(db *sql.DB, limit int) ([]UploadBatch, error) {
	rows, err := db.Query(
		`SELECT id, file_name, sample_count, first_index, uploaded_by, uploaded_at
		 FROM upload_batches
		 ORDER BY uploaded_at DESC, file_name DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UploadBatch
	for rows.Next() {
		var b UploadBatch
		if err := rows.Scan(&b.ID, &b.FileName, &b.SampleCount, &b.FirstIndex, &b.UploadedBy, &b.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- Partition runs ---

type PartitionRun struct {
	ID           int64
	NumLabelers  int
	TotalSamples int
	CreatedBy    string
	CreatedAt    time.Time
}

func InsertPartitionRun(db *sql.DB, r PartitionRun) error {
	_, err := db.Exec(
		`INSERT INTO partition_runs (num_labelers, total_samples, created_by, created_at)
		 VALUES (?, ?, ?, ?)`,
		r.NumLabelers, r.TotalSamples, r.CreatedBy, r.CreatedAt,
	)
	return err
}

func GetLatestPartitionRun(db *sql.DB) (PartitionRun, error) {
	var r PartitionRun
	err := db.QueryRow(
		`SELECT id, num_labelers, total_samples, created_by, created_at
		 FROM partition_runs
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&r.ID, &r.NumLabelers, &r.TotalSamples, &r.CreatedBy, &r.CreatedAt)
	return r, err
}

// --- Labeler bindings ---

func BindLabeler(db *sql.DB, slackUserID, labelerID string, at time.Time) error {
	_, err := db.Exec(
		`INSERT INTO labeler_bindings (slack_user_id, labeler_id, bound_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(slack_user_id) DO UPDATE SET labeler_id = excluded.labeler_id, bound_at = excluded.bound_at`,
		slackUserID, labelerID, at,
	)
	return err
}

// GetLabelerBinding returns the labeler id bound to a Slack user, or sql.ErrNoRows.
func GetLabelerBinding(db *sql.DB, slackUserID string) (string, error) {
	var labelerID string
	err := db.QueryRow(
		`SELECT labeler_id FROM labeler_bindings WHERE slack_user_id = ?`,
		slackUserID,
	).Scan(&labelerID)
	return labelerID, err
}

// GetLabelerBindings maps labeler ids to the Slack users bound to them.
func GetLabelerBindings(db *sql.DB) (map[string][]string, error) {
	rows, err := db.Query(
		`SELECT labeler_id, slack_user_id FROM labeler_bindings ORDER BY labeler_id, bound_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var labelerID, userID string
		if err := rows.Scan(&labelerID, &userID); err != nil {
			return nil, err
		}
		out[labelerID] = append(out[labelerID], userID)
	}
	return out, rows.Err()
}

// --- Label suggestions ---

type LabelSuggestion struct {
	ID          int64
	SampleIndex int
	Label       string
	Confidence  float64
	LLMProvider string
	LLMModel    string
	CreatedAt   time.Time
}

func InsertLabelSuggestions(db *sql.DB, suggestions []LabelSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO label_suggestions (sample_index, label, confidence, llm_provider, llm_model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range suggestions {
		if _, err := stmt.Exec(s.SampleIndex, s.Label, s.Confidence, s.LLMProvider, s.LLMModel, s.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func GetLatestSuggestion(db *sql.DB, sampleIndex int) (LabelSuggestion, error) {
	var s LabelSuggestion
	err := db.QueryRow(
		`SELECT id, sample_index, label, confidence, llm_provider, llm_model, created_at
		 FROM label_suggestions
		 WHERE sample_index = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		sampleIndex,
	).Scan(&s.ID, &s.SampleIndex, &s.Label, &s.Confidence, &s.LLMProvider, &s.LLMModel, &s.CreatedAt)
	return s, err
}

// ClearLabelSuggestions drops every cached suggestion. Suggestions are keyed
// by sample index, which is reassigned after a reset.
func ClearLabelSuggestions(db *sql.DB) error {
	_, err := db.Exec(`DELETE FROM label_suggestions`)
	return err
}

// --- Store resets ---

func InsertStoreReset(db *sql.DB, resetBy string, removedFiles int, at time.Time) error {
	_, err := db.Exec(
		`INSERT INTO store_resets (reset_by, removed_files, created_at) VALUES (?, ?, ?)`,
		resetBy, removedFiles, at,
	)
	return err
}

func CountStoreResets(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM store_resets`).Scan(&count)
	return count, err
}
