package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the format of LabelEntry.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

const labelerPrefix = "user_"

// Sample is one instruction/output pair. Its identity is its position in the
// sample store.
type Sample struct {
	Instruction string `json:"instruction"`
	Output      string `json:"output"`
}

// AssignmentMap maps labeler ids (user_1, user_2, ...) to the sample indices
// they own.
type AssignmentMap map[string][]int

// LabelerID returns the id of the n-th labeler (1-based).
func LabelerID(n int) string {
	return fmt.Sprintf("%s%d", labelerPrefix, n)
}

// LabelerNumber extracts n from "user_<n>". ok is false for other ids.
func LabelerNumber(id string) (int, bool) {
	if !strings.HasPrefix(id, labelerPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, labelerPrefix))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Labelers returns the labeler ids in natural order, so user_2 sorts before user_10.
func (m AssignmentMap) Labelers() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, okI := LabelerNumber(ids[i])
		nj, okJ := LabelerNumber(ids[j])
		switch {
		case okI && okJ:
			return ni < nj
		case okI != okJ:
			return okI
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

// Clone returns a deep copy.
func (m AssignmentMap) Clone() AssignmentMap {
	out := make(AssignmentMap, len(m))
	for id, indices := range m {
		out[id] = append(make([]int, 0, len(indices)), indices...)
	}
	return out
}

// Progress is the derived completion state of one labeler.
type Progress struct {
	Labeler   string
	Completed int
	Total     int
}

// Ratio is Completed/Total, or 0 for an empty assignment.
func (p Progress) Ratio() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

func (p Progress) Percent() string {
	return fmt.Sprintf("%.1f%%", p.Ratio()*100)
}

func (p Progress) Done() bool {
	return p.Completed >= p.Total
}

// FormatTimestamp renders t in the layout stored in label entries.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
