package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"labelbot/internal/domain"
	"labelbot/internal/labeling"
	"labelbot/internal/storage/filestore"
	"labelbot/internal/storage/sqlite"
	"labelbot/internal/workflow"

	"github.com/stretchr/testify/require"
)

func TestProgressBar(t *testing.T) {
	require.Equal(t, "░░░░░░░░░░", ProgressBar(domain.Progress{}))
	require.Equal(t, "▓▓▓▓▓░░░░░", ProgressBar(domain.Progress{Completed: 1, Total: 2}))
	require.Equal(t, "▓▓▓▓▓▓▓▓▓▓", ProgressBar(domain.Progress{Completed: 3, Total: 3}))
}

func TestFormatProgressLineEmptyAssignment(t *testing.T) {
	got := FormatProgressLine(domain.Progress{Labeler: "user_4"})
	require.Equal(t, "user_4 ░░░░░░░░░░ 0/0 (0.0%)", got)
}

func TestRenderMarkdown(t *testing.T) {
	rows := []labeling.ExportRow{
		{Index: 0, Label: domain.LabelPolicy},
		{Index: 1, Label: domain.LabelPolicy},
		{Index: 2},
	}
	got := RenderMarkdown(ProgressReport{
		Project:     "Civic QA",
		GeneratedAt: time.Date(2026, 2, 3, 4, 5, 0, 0, time.UTC),
		Samples:     3,
		Progress: []domain.Progress{
			{Labeler: "user_1", Completed: 1, Total: 1},
			{Labeler: "user_2", Completed: 0, Total: 2},
		},
		Orphaned: []int{1},
		Rows:     rows,
		Activity: []Activity{{Labeler: "user_1", Labeled: 3, Cleared: 1}},
	})

	require.Contains(t, got, "### Civic QA labeling progress")
	require.Contains(t, got, "Samples: 3, labeled: 2 (66.7%)")
	require.Contains(t, got, "- user_1 ▓▓▓▓▓▓▓▓▓▓ 1/1 (100.0%) done\n")
	require.Contains(t, got, "- user_2 ░░░░░░░░░░ 0/2 (0.0%)\n")
	require.Contains(t, got, "1 labeled samples are outside every current assignment")
	require.Contains(t, got, "- user_1: 3 labeled, 1 cleared")
	require.Contains(t, got, ": 2\n")
}

func TestRenderMarkdownEmptyStore(t *testing.T) {
	got := RenderMarkdown(ProgressReport{Project: "P", GeneratedAt: time.Now()})
	require.True(t, strings.HasSuffix(got, "No samples uploaded yet.\n"))
}

func TestWriteReportFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	path, err := WriteReportFile("# hi\n", dir, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "Civic QA/v2")
	require.NoError(t, err)
	require.Equal(t, "Civic_QA_v2_progress_20260102.md", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "# hi\n", string(data))
}

func TestCollect(t *testing.T) {
	store, err := filestore.New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	wf, err := workflow.Open(store, workflow.WithAuditor(sqlite.NewAudit(db)))
	require.NoError(t, err)
	_, err = wf.Upload([]workflow.Batch{{Name: "a.json", Data: []byte(`[{"instruction":"q","output":"a"},{"instruction":"q2","output":"a2"}]`)}}, "host")
	require.NoError(t, err)
	_, err = wf.Partition(2, "host")
	require.NoError(t, err)
	_, err = wf.SetLabel(0, domain.LabelPolicy, "user_1", "U1")
	require.NoError(t, err)

	r := Collect(wf, db, "P", time.Now())
	require.Equal(t, 2, r.Samples)
	require.Len(t, r.Progress, 2)
	require.Len(t, r.Rows, 2)
	require.Equal(t, []Activity{{Labeler: "user_1", Labeled: 1}}, r.Activity)

	r = Collect(wf, nil, "P", time.Now())
	require.Empty(t, r.Activity)
}
