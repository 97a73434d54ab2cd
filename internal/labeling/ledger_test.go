package labeling

import (
	"testing"
	"time"

	"labelbot/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestLedgerSetAndUnset(t *testing.T) {
	ledger := NewLedger()
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	_, ok := ledger.Get(4)
	require.False(t, ok)

	require.True(t, ledger.Set(4, domain.LabelPolicy, "user_1", now))
	entry, ok := ledger.Get(4)
	require.True(t, ok)
	require.Equal(t, domain.LabelEntry{
		Label:     domain.LabelPolicy,
		LabeledBy: "user_1",
		Timestamp: "2026-03-02 09:30:00",
	}, entry)

	require.True(t, ledger.Set(4, domain.LabelUnset, "user_1", now))
	_, ok = ledger.Get(4)
	require.False(t, ok)
	require.Empty(t, ledger)

	require.False(t, ledger.Set(4, domain.LabelUnset, "user_1", now), "unset on absent entry is a no-op")
}

func TestLedgerOverwriteReplacesWholeEntry(t *testing.T) {
	ledger := NewLedger()
	first := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	ledger.Set(7, domain.LabelTerminology, "user_1", first)
	ledger.Set(7, domain.LabelNotApplicable, "user_3", second)

	entry, ok := ledger.Get(7)
	require.True(t, ok)
	require.Equal(t, domain.LabelNotApplicable, entry.Label)
	require.Equal(t, "user_3", entry.LabeledBy)
	require.Equal(t, "2026-03-02 10:30:00", entry.Timestamp)
}

func TestLedgerIndicesSorted(t *testing.T) {
	ledger := Ledger{
		"10":  {Label: domain.LabelPolicy},
		"2":   {Label: domain.LabelPolicy},
		"bad": {Label: domain.LabelPolicy},
	}
	require.Equal(t, []int{2, 10}, ledger.Indices())

	clone := ledger.Clone()
	delete(clone, "2")
	require.True(t, ledger.Has(2))
}
