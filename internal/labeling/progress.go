package labeling

import "labelbot/internal/domain"

// ComputeProgress counts how many of labeler's assigned indices are labeled.
// An unknown labeler or an empty assignment yields 0/0.
func ComputeProgress(labeler string, assignments domain.AssignmentMap, ledger Ledger) domain.Progress {
	indices := assignments[labeler]
	p := domain.Progress{Labeler: labeler, Total: len(indices)}
	for _, idx := range indices {
		if ledger.Has(idx) {
			p.Completed++
		}
	}
	return p
}

// ComputeAllProgress returns one entry per labeler in natural labeler order.
func ComputeAllProgress(assignments domain.AssignmentMap, ledger Ledger) []domain.Progress {
	labelers := assignments.Labelers()
	out := make([]domain.Progress, 0, len(labelers))
	for _, labeler := range labelers {
		out = append(out, ComputeProgress(labeler, assignments, ledger))
	}
	return out
}

// Orphaned lists labeled indices that no current assignment covers. They
// stay in the ledger and in exports but no labeler is shown them.
func Orphaned(assignments domain.AssignmentMap, ledger Ledger) []int {
	covered := make(map[int]bool)
	for _, indices := range assignments {
		for _, idx := range indices {
			covered[idx] = true
		}
	}
	var out []int
	for _, idx := range ledger.Indices() {
		if !covered[idx] {
			out = append(out, idx)
		}
	}
	return out
}
