package filestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"labelbot/internal/domain"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	return s
}

func TestMissingFilesLoadAsEmpty(t *testing.T) {
	s := newTestStore(t)

	ledger, err := s.LoadLedger()
	require.NoError(t, err)
	require.NotNil(t, ledger)
	require.Empty(t, ledger)

	assignments, err := s.LoadAssignments()
	require.NoError(t, err)
	require.NotNil(t, assignments)
	require.Empty(t, assignments)

	samples, err := s.LoadSamples()
	require.NoError(t, err)
	require.Empty(t, samples)

	_, ok := s.PolicyImagePath()
	require.False(t, ok)
}

func TestLedgerAndAssignmentsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	ledger := map[string]domain.LabelEntry{
		"0": {Label: domain.LabelPolicy, LabeledBy: "user_1", Timestamp: "2026-01-02 03:04:05"},
	}
	require.NoError(t, s.SaveLedger(ledger))
	got, err := s.LoadLedger()
	require.NoError(t, err)
	require.Equal(t, ledger, got)

	assignments := domain.AssignmentMap{"user_1": {}, "user_2": {0, 1}}
	require.NoError(t, s.SaveAssignments(assignments))
	raw, err := os.ReadFile(filepath.Join(s.Dir(), AssignmentsFile))
	require.NoError(t, err)
	require.JSONEq(t, `{"user_1": [], "user_2": [0, 1]}`, string(raw))

	gotAssignments, err := s.LoadAssignments()
	require.NoError(t, err)
	require.Equal(t, assignments, gotAssignments)
}

func TestLoadLedgerFromOriginalFormat(t *testing.T) {
	s := newTestStore(t)
	legacy := `{"5": {"label": "행정 절차", "user": "user_2", "timestamp": "2024-11-20 14:00:00"}}`
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), LabelsFile), []byte(legacy), 0o644))

	ledger, err := s.LoadLedger()
	require.NoError(t, err)
	require.Equal(t, domain.LabelAdministrativeProcedure, ledger["5"].Label)
	require.Equal(t, "user_2", ledger["5"].LabeledBy)
}

func TestSaveBatchOrderingAndCollisions(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	// Written out of chronological order on purpose.
	later, err := s.SaveBatch([]domain.Sample{{Instruction: "late", Output: "x"}}, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "data_20260401_130000.json", later)

	var names []string
	for i := 0; i < 11; i++ {
		name, err := s.SaveBatch([]domain.Sample{{Instruction: "early", Output: "x"}}, base)
		require.NoError(t, err)
		names = append(names, name)
	}
	require.Equal(t, "data_20260401_120000.json", names[0])
	require.Equal(t, "data_20260401_120000_2.json", names[1])
	require.Equal(t, "data_20260401_120000_11.json", names[10])

	files, err := s.BatchFiles()
	require.NoError(t, err)
	require.Equal(t, append(names, later), files)

	samples, err := s.LoadSamples()
	require.NoError(t, err)
	require.Len(t, samples, 12)
	require.Equal(t, "late", samples[11].Instruction)
}

func TestParseBatch(t *testing.T) {
	samples, err := ParseBatch([]byte(`[{"instruction": "q", "output": "a", "source": "ignored"}]`))
	require.NoError(t, err)
	require.Equal(t, []domain.Sample{{Instruction: "q", Output: "a"}}, samples)

	bad := []string{
		`{"instruction": "q", "output": "a"}`,
		`[{"instruction": "q"}]`,
		`[{"instruction": 3, "output": "a"}]`,
		`[null]`,
		`not json`,
		`null`,
		`[{"instruction": null, "output": "a"}]`,
		`[{"instruction": "q", "output": null}]`,
	}
	for _, in := range bad {
		_, err := ParseBatch([]byte(in))
		require.Error(t, err, "input %s", in)
	}

	samples, err = ParseBatch([]byte(`[]`))
	require.NoError(t, err)
	require.Empty(t, samples)
}

func TestResetKeepsPolicyImage(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveBatch([]domain.Sample{{Instruction: "q", Output: "a"}}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.SaveLedger(map[string]domain.LabelEntry{"0": {Label: domain.LabelPolicy}}))
	require.NoError(t, s.SaveAssignments(domain.AssignmentMap{"user_1": {0}}))
	imgPath, err := s.SavePolicyImage("guide.PNG", []byte("png-bytes"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(s.Dir(), "policy_image.png"), imgPath)

	removed, err := s.Reset()
	require.NoError(t, err)
	require.Len(t, removed, 3)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	p, ok := s.PolicyImagePath()
	require.True(t, ok)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))
}

func TestSavePolicyImageReplacesOtherExtension(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SavePolicyImage("a.png", []byte("one"))
	require.NoError(t, err)
	_, err = s.SavePolicyImage("b.jpg", []byte("two"))
	require.NoError(t, err)

	p, ok := s.PolicyImagePath()
	require.True(t, ok)
	require.Equal(t, "policy_image.jpg", filepath.Base(p))
	_, err = os.Stat(filepath.Join(s.Dir(), "policy_image.png"))
	require.True(t, os.IsNotExist(err))

	_, err = s.SavePolicyImage("c.gif", []byte("three"))
	require.Error(t, err)
}
