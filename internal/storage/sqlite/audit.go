package sqlite

import (
	"database/sql"
	"time"

	"labelbot/internal/domain"
)

// Audit writes workflow events to the history tables.
type Audit struct {
	db *sql.DB
}

func NewAudit(db *sql.DB) *Audit {
	return &Audit{db: db}
}

func (a *Audit) RecordUpload(fileName string, sampleCount, firstIndex int, by string, at time.Time) (string, error) {
	return InsertUploadBatch(a.db, UploadBatch{
		FileName:    fileName,
		SampleCount: sampleCount,
		FirstIndex:  firstIndex,
		UploadedBy:  by,
		UploadedAt:  at,
	})
}

func (a *Audit) RecordPartition(numLabelers, totalSamples int, by string, at time.Time) error {
	return InsertPartitionRun(a.db, PartitionRun{
		NumLabelers:  numLabelers,
		TotalSamples: totalSamples,
		CreatedBy:    by,
		CreatedAt:    at,
	})
}

func (a *Audit) RecordLabel(index int, label domain.Label, labeler, actor string, at time.Time) error {
	return InsertLabelEvent(a.db, LabelEvent{
		SampleIndex: index,
		Label:       string(label),
		Labeler:     labeler,
		Actor:       actor,
		CreatedAt:   at,
	})
}

func (a *Audit) RecordReset(by string, removedFiles int, at time.Time) error {
	if err := InsertStoreReset(a.db, by, removedFiles, at); err != nil {
		return err
	}
	return ClearLabelSuggestions(a.db)
}
