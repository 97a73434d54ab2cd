package slackbot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"labelbot/internal/domain"
	"labelbot/internal/labeling"
	"labelbot/internal/report"
	"labelbot/internal/storage/sqlite"
	"labelbot/internal/workflow"
)

func formatTokenCount(tokens int64) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	}
	rounded := (tokens + 50) / 100
	whole := rounded / 10
	decimal := rounded % 10
	if decimal == 0 {
		return fmt.Sprintf("%dk", whole)
	}
	return fmt.Sprintf("%d.%dk", whole, decimal)
}

func parseAssignArg(text string) (int, error) {
	fields := strings.Fields(text)
	if len(fields) != 1 {
		return 0, fmt.Errorf("Usage: /label-assign <number of labelers>")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("%q is not a number. Usage: /label-assign <number of labelers>", fields[0])
	}
	return n, nil
}

func formatAssignments(total int, assignments domain.AssignmentMap) string {
	labelers := assignments.Labelers()
	var b strings.Builder
	fmt.Fprintf(&b, "Split %d sample(s) across %d labeler(s):", total, len(labelers))
	for _, id := range labelers {
		fmt.Fprintf(&b, "\n• %s: %d sample(s)", id, len(assignments[id]))
	}
	return b.String()
}

func formatProgressMessage(project string, total int, progress []domain.Progress, orphaned []int) string {
	lines := []string{fmt.Sprintf("*%s progress* (%d samples)", project, total)}
	if len(progress) == 0 {
		lines = append(lines, "No assignments yet. Run `/label-assign <n>` first.")
	}
	for _, p := range progress {
		lines = append(lines, "`"+report.FormatProgressLine(p)+"`")
	}
	if len(orphaned) > 0 {
		lines = append(lines, fmt.Sprintf("%d labeled sample(s) are not assigned to anyone. They are kept in the ledger and included in exports.", len(orphaned)))
	}
	return strings.Join(lines, "\n")
}

func formatUploadResult(names []string, res workflow.UploadResult) string {
	from := strings.Join(names, ", ")
	if res.Added == 0 {
		return fmt.Sprintf("%s contained no samples. Nothing was stored.", from)
	}
	return fmt.Sprintf("Stored %d sample(s) from %s as #%d-#%d (%s). The store now holds %d sample(s). Run `/label-assign <n>` to redistribute.",
		res.Added, from, res.FirstIndex, res.FirstIndex+res.Added-1, res.File, res.Total)
}

// formatExportSummary counts labeled rows; every sample gets a row.
func formatExportSummary(rows []labeling.ExportRow) string {
	labeled := 0
	for _, row := range rows {
		if !row.Label.IsUnset() {
			labeled++
		}
	}
	return fmt.Sprintf("%d of %d sample(s) labeled; %d row(s) exported", labeled, len(rows), len(rows))
}

// parseClaimArgs reads "/label-claim user_<n> [@user]".
func parseClaimArgs(text string) (labeler, target string, err error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", "", nil
	}
	if len(fields) > 2 {
		return "", "", fmt.Errorf("Usage: /label-claim user_<n> [@user]")
	}
	labeler = strings.ToLower(fields[0])
	if _, ok := domain.LabelerNumber(labeler); !ok {
		if n, convErr := strconv.Atoi(labeler); convErr == nil && n > 0 {
			labeler = domain.LabelerID(n)
		} else {
			return "", "", fmt.Errorf("%q is not a labeler id like user_1", fields[0])
		}
	}
	if len(fields) == 2 {
		target = fields[1]
	}
	return labeler, target, nil
}

func formatBindings(labelers []string, bindings map[string][]string) string {
	ids := append([]string{}, labelers...)
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	var extra []string
	for id := range bindings {
		if !known[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	ids = append(ids, extra...)
	if len(ids) == 0 {
		return "No labelers yet. Run `/label-assign <n>` first."
	}

	lines := []string{"*Labeler bindings*"}
	for _, id := range ids {
		users := bindings[id]
		if len(users) == 0 {
			lines = append(lines, fmt.Sprintf("• %s: unclaimed", id))
			continue
		}
		mentions := make([]string, len(users))
		for i, u := range users {
			mentions[i] = "<@" + u + ">"
		}
		lines = append(lines, fmt.Sprintf("• %s: %s", id, strings.Join(mentions, ", ")))
	}
	return strings.Join(lines, "\n")
}

func parseIndexArg(text, usage string) (int, error) {
	fields := strings.Fields(text)
	if len(fields) != 1 {
		return 0, fmt.Errorf("Usage: %s", usage)
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(fields[0], "#"))
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("%q is not a sample index. Usage: %s", fields[0], usage)
	}
	return idx, nil
}

func formatHistory(index int, current domain.LabelEntry, hasCurrent bool, events []sqlite.LabelEvent) string {
	lines := []string{fmt.Sprintf("*Sample #%d*", index)}
	if hasCurrent {
		lines = append(lines, fmt.Sprintf("Current: *%s* by %s at %s", current.Label.DisplayName(), current.LabeledBy, current.Timestamp))
	} else {
		lines = append(lines, "Current: not labeled")
	}
	if len(events) == 0 {
		lines = append(lines, "No recorded changes.")
		return strings.Join(lines, "\n")
	}
	for _, e := range events {
		action := "cleared the label"
		if e.Label != "" {
			action = "set *" + domain.Label(e.Label).DisplayName() + "*"
		}
		line := fmt.Sprintf("• %s %s %s", e.CreatedAt.Format(domain.TimestampLayout), e.Labeler, action)
		if e.Actor != "" {
			line += fmt.Sprintf(" (<@%s>)", e.Actor)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// parseTermArgs reads "/label-term <label> <phrase...>".
func parseTermArgs(text string) (domain.Label, string, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", "", fmt.Errorf("Usage: /label-term <label> <phrase>")
	}
	label, err := domain.ParseLabel(fields[0])
	if err != nil || label.IsUnset() {
		return "", "", fmt.Errorf("%q is not a label. Use one of: %s", fields[0], labelIDList())
	}
	return label, strings.Join(fields[1:], " "), nil
}

func labelIDList() string {
	ids := make([]string, len(domain.Labels))
	for i, l := range domain.Labels {
		ids[i] = string(l)
	}
	return strings.Join(ids, ", ")
}
