package labeling

import "labelbot/internal/domain"

// ExportRow is one line of the result sheet.
type ExportRow struct {
	Index       int
	Instruction string
	Output      string
	Label       domain.Label
	LabeledBy   string
	Timestamp   string
}

// Export joins samples with their ledger entries. There is exactly one row
// per sample, in sample store order, whether or not it has been labeled.
func Export(samples []domain.Sample, ledger Ledger) []ExportRow {
	rows := make([]ExportRow, 0, len(samples))
	for idx, sample := range samples {
		row := ExportRow{
			Index:       idx,
			Instruction: sample.Instruction,
			Output:      sample.Output,
		}
		if entry, ok := ledger.Get(idx); ok {
			row.Label = entry.Label
			row.LabeledBy = entry.LabeledBy
			row.Timestamp = entry.Timestamp
		}
		rows = append(rows, row)
	}
	return rows
}
