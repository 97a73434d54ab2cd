package labeling

import (
	"sort"
	"strconv"
	"time"

	"labelbot/internal/domain"
)

// Ledger holds the current label decision per sample, keyed by the sample
// index in decimal. An index is present only while it carries a real label.
type Ledger map[string]domain.LabelEntry

func NewLedger() Ledger {
	return make(Ledger)
}

func ledgerKey(index int) string {
	return strconv.Itoa(index)
}

// Set records label for index. Setting LabelUnset removes the entry. Any
// labeler may overwrite any entry. Set reports whether the ledger changed.
func (l Ledger) Set(index int, label domain.Label, labeler string, now time.Time) bool {
	key := ledgerKey(index)
	if label.IsUnset() {
		if _, ok := l[key]; !ok {
			return false
		}
		delete(l, key)
		return true
	}
	l[key] = domain.LabelEntry{
		Label:     label,
		LabeledBy: labeler,
		Timestamp: domain.FormatTimestamp(now),
	}
	return true
}

func (l Ledger) Get(index int) (domain.LabelEntry, bool) {
	entry, ok := l[ledgerKey(index)]
	return entry, ok
}

func (l Ledger) Has(index int) bool {
	_, ok := l[ledgerKey(index)]
	return ok
}

func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Indices returns the labeled indices in ascending order. Keys that are not
// decimal integers are skipped.
func (l Ledger) Indices() []int {
	out := make([]int, 0, len(l))
	for key := range l {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
