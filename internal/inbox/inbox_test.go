package inbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"labelbot/internal/storage/filestore"
	"labelbot/internal/workflow"

	"github.com/stretchr/testify/require"
)

var importNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newWorkflow(t *testing.T) *workflow.Workflow {
	t.Helper()
	store, err := filestore.New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	wf, err := workflow.Open(store, workflow.WithClock(func() time.Time { return importNow }))
	require.NoError(t, err)
	return wf
}

func TestImportInboxMovesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `[{"instruction": "b1", "output": "x"}]`)
	writeFile(t, dir, "a.json", `[{"instruction": "a1", "output": "x"}, {"instruction": "a2", "output": "y"}]`)
	writeFile(t, dir, "broken.json", `[{"instruction": "missing output"}]`)
	writeFile(t, dir, "notes.txt", "ignored")

	wf := newWorkflow(t)
	result, err := ImportInbox(wf, dir, importNow)
	require.NoError(t, err)
	require.Equal(t, 3, result.Files)
	require.Equal(t, 2, result.Imported)
	require.Equal(t, 3, result.Samples)
	require.Equal(t, []string{"broken.json"}, result.Failed)
	require.Empty(t, result.Errors)

	// Name order decides sample order.
	first, ok := wf.Sample(0)
	require.True(t, ok)
	require.Equal(t, "a1", first.Instruction)
	last, ok := wf.Sample(2)
	require.True(t, ok)
	require.Equal(t, "b1", last.Instruction)

	_, err = os.Stat(filepath.Join(dir, "processed", "20260601_080000_a.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "failed", "20260601_080000_broken.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)

	again, err := ImportInbox(wf, dir, importNow)
	require.NoError(t, err)
	require.Equal(t, 0, again.Files)
	require.Equal(t, 3, wf.SampleCount())
}

func TestImportInboxMissingDir(t *testing.T) {
	result, err := ImportInbox(newWorkflow(t), filepath.Join(t.TempDir(), "nope"), importNow)
	require.NoError(t, err)
	require.Equal(t, 0, result.Files)
}

func TestFormatImportSummary(t *testing.T) {
	require.Equal(t, "Inbox empty, nothing to import.", FormatImportSummary(ImportResult{}))
	require.Equal(t,
		"Imported 2 of 3 inbox files (5 samples), 1 malformed moved to failed/: x.json.",
		FormatImportSummary(ImportResult{Files: 3, Imported: 2, Samples: 5, Failed: []string{"x.json"}}))
	require.Equal(t,
		"Imported 1 of 1 inbox files (2 samples).\nWarnings:\nx.json: permission denied",
		FormatImportSummary(ImportResult{Files: 1, Imported: 1, Samples: 2, Errors: []string{"x.json: permission denied"}}))
}
