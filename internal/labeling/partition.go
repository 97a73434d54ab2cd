package labeling

import "labelbot/internal/domain"

// Partition splits [0, totalSamples) into numLabelers contiguous blocks.
// Every labeler but the last receives totalSamples/numLabelers indices; the
// last one absorbs the remainder.
func Partition(totalSamples, numLabelers int) domain.AssignmentMap {
	assignments := make(domain.AssignmentMap, max(numLabelers, 0))
	if numLabelers < 1 {
		return assignments
	}
	if totalSamples < 0 {
		totalSamples = 0
	}

	perLabeler := totalSamples / numLabelers
	for i := 0; i < numLabelers; i++ {
		start := i * perLabeler
		end := start + perLabeler
		if i == numLabelers-1 {
			end = totalSamples
		}
		indices := make([]int, 0, end-start)
		for idx := start; idx < end; idx++ {
			indices = append(indices, idx)
		}
		assignments[domain.LabelerID(i+1)] = indices
	}
	return assignments
}
