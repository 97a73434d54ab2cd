package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"labelbot/internal/domain"
	"labelbot/internal/labeling"
)

// Activity is one labeler's recent ledger writes.
type Activity struct {
	Labeler string
	Labeled int
	Cleared int
}

// ProgressReport is everything the progress summary shows.
type ProgressReport struct {
	Project     string
	GeneratedAt time.Time
	Samples     int
	Progress    []domain.Progress
	Orphaned    []int
	Rows        []labeling.ExportRow
	Activity    []Activity
}

const barWidth = 10

// ProgressBar renders ratio as a fixed-width bar, e.g. "▓▓▓▓░░░░░░".
func ProgressBar(p domain.Progress) string {
	filled := int(p.Ratio()*barWidth + 0.5)
	filled = min(max(filled, 0), barWidth)
	return strings.Repeat("▓", filled) + strings.Repeat("░", barWidth-filled)
}

// LabelCounts tallies labels across export rows. Unlabeled rows are counted
// under LabelUnset.
func LabelCounts(rows []labeling.ExportRow) map[domain.Label]int {
	counts := make(map[domain.Label]int)
	for _, row := range rows {
		counts[row.Label]++
	}
	return counts
}

// FormatProgressLine is the per-labeler line used in Slack and in the report.
func FormatProgressLine(p domain.Progress) string {
	return fmt.Sprintf("%s %s %d/%d (%s)", p.Labeler, ProgressBar(p), p.Completed, p.Total, p.Percent())
}

// RenderMarkdown renders the report in Slack mrkdwn-compatible markdown.
func RenderMarkdown(r ProgressReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("### %s labeling progress\n", r.Project))
	b.WriteString(fmt.Sprintf("_%s_\n\n", r.GeneratedAt.Format("2006-01-02 15:04")))

	if r.Samples == 0 {
		b.WriteString("No samples uploaded yet.\n")
		return b.String()
	}
	labeled := 0
	for _, row := range r.Rows {
		if !row.Label.IsUnset() {
			labeled++
		}
	}
	overall := domain.Progress{Labeler: "overall", Completed: labeled, Total: r.Samples}
	b.WriteString(fmt.Sprintf("Samples: %d, labeled: %d (%s)\n\n", r.Samples, labeled, overall.Percent()))

	if len(r.Progress) == 0 {
		b.WriteString("No assignments yet. Run `/label-assign <n>`.\n")
	} else {
		b.WriteString("#### Labelers\n")
		for _, p := range r.Progress {
			b.WriteString("- " + FormatProgressLine(p))
			if p.Total > 0 && p.Done() {
				b.WriteString(" done")
			}
			b.WriteString("\n")
		}
	}

	if len(r.Rows) > 0 {
		counts := LabelCounts(r.Rows)
		b.WriteString("\n#### Labels\n")
		for _, label := range domain.Labels {
			b.WriteString(fmt.Sprintf("- %s: %d\n", label.DisplayName(), counts[label]))
		}
		b.WriteString(fmt.Sprintf("- %s: %d\n", domain.LabelUnset.DisplayName(), counts[domain.LabelUnset]))
	}

	if len(r.Orphaned) > 0 {
		b.WriteString(fmt.Sprintf("\n%d labeled samples are outside every current assignment (kept in exports).\n", len(r.Orphaned)))
	}

	if len(r.Activity) > 0 {
		b.WriteString("\n#### Last 24h\n")
		for _, a := range r.Activity {
			line := fmt.Sprintf("- %s: %d labeled", a.Labeler, a.Labeled)
			if a.Cleared > 0 {
				line += fmt.Sprintf(", %d cleared", a.Cleared)
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

func WriteReportFile(content, outputDir string, reportDate time.Time, projectName string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s_progress_%s.md", sanitizeFilename(projectName), reportDate.Format("20060102"))
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")
	return replacer.Replace(s)
}
