package report

import (
	"database/sql"
	"log"
	"time"

	"labelbot/internal/storage/sqlite"
	"labelbot/internal/workflow"
)

// Collect snapshots the workflow and the last 24h of audit activity. A nil
// db skips the activity section.
func Collect(wf *workflow.Workflow, db *sql.DB, project string, now time.Time) ProgressReport {
	r := ProgressReport{
		Project:     project,
		GeneratedAt: now,
		Samples:     wf.SampleCount(),
		Progress:    wf.AllProgress(),
		Orphaned:    wf.Orphaned(),
		Rows:        wf.Export(),
	}
	if db == nil {
		return r
	}
	activity, err := sqlite.GetLabelerActivity(db, now.Add(-24*time.Hour))
	if err != nil {
		log.Printf("report activity error: %v (non-fatal)", err)
		return r
	}
	for _, a := range activity {
		r.Activity = append(r.Activity, Activity{Labeler: a.Labeler, Labeled: a.Labeled, Cleared: a.Cleared})
	}
	return r
}
