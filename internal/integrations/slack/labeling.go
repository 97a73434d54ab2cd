package slackbot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"labelbot/internal/domain"
	llm "labelbot/internal/integrations/llm"
	"labelbot/internal/report"
	"labelbot/internal/storage/sqlite"
	"labelbot/internal/workflow"

	"github.com/slack-go/slack"
)

const (
	labelBlockPrefix   = "label:"
	unsetOptionValue   = "unset"
	maxSampleTextRunes = 1200
	suggestTimeout     = 3 * time.Minute
)

var errNotClaimed = errors.New("no labeler bound to this user")

type labelRow struct {
	Index      int
	Sample     domain.Sample
	Entry      domain.LabelEntry
	Labeled    bool
	Suggestion *sqlite.LabelSuggestion
}

// labelView is one rendered page of a labeler's assignment.
type labelView struct {
	Labeler    string
	Page       int
	Pages      int
	Progress   domain.Progress
	Rows       []labelRow
	CanSuggest bool
}

// parseLabelArgs reads "/label [user_<n>] [page]". Pages are 1-based in the
// command and 0-based in the result; page is -1 when not given.
func parseLabelArgs(text string) (string, int, error) {
	labeler := ""
	page := -1
	for _, f := range strings.Fields(text) {
		lower := strings.ToLower(f)
		if _, ok := domain.LabelerNumber(lower); ok && labeler == "" {
			labeler = lower
			continue
		}
		if n, err := strconv.Atoi(f); err == nil && n >= 1 && page < 0 {
			page = n - 1
			continue
		}
		return "", 0, fmt.Errorf("Usage: /label [user_<n>] [page]")
	}
	return labeler, page, nil
}

func resolveLabeler(db *sql.DB, userID, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	id, err := sqlite.GetLabelerBinding(db, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errNotClaimed
	}
	return id, err
}

// pageBounds clamps page into range and returns it with the slice bounds of
// that page.
func pageBounds(total, page, size int) (int, int, int) {
	if size < 1 {
		size = 1
	}
	if page < 0 || total == 0 {
		page = 0
	}
	if total == 0 {
		return 0, 0, 0
	}
	if last := (total - 1) / size; page > last {
		page = last
	}
	start := page * size
	end := start + size
	if end > total {
		end = total
	}
	return page, start, end
}

func pageCount(total, size int) int {
	if total == 0 || size < 1 {
		return 1
	}
	return (total + size - 1) / size
}

// firstOpenPage is the first page holding an unlabeled sample, or the last
// page when everything is labeled.
func firstOpenPage(indices []int, size int, labeled func(int) bool) int {
	if size < 1 {
		size = 1
	}
	for i, idx := range indices {
		if !labeled(idx) {
			return i / size
		}
	}
	return pageCount(len(indices), size) - 1
}

func pageValue(labeler string, page int) string {
	return fmt.Sprintf("%s|%d", labeler, page)
}

func parsePageValue(v string) (string, int, error) {
	parts := strings.SplitN(strings.TrimSpace(v), "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", 0, fmt.Errorf("invalid page value %q", v)
	}
	page, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid page value %q", v)
	}
	return parts[0], page, nil
}

func labelBlockID(labeler string, index, page int) string {
	return fmt.Sprintf("%s%s|%d|%d", labelBlockPrefix, labeler, index, page)
}

func parseLabelBlockID(id string) (labeler string, index, page int, err error) {
	if !strings.HasPrefix(id, labelBlockPrefix) {
		return "", 0, 0, fmt.Errorf("not a label block: %q", id)
	}
	parts := strings.Split(strings.TrimPrefix(id, labelBlockPrefix), "|")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, 0, fmt.Errorf("invalid label block id %q", id)
	}
	if index, err = strconv.Atoi(parts[1]); err != nil {
		return "", 0, 0, fmt.Errorf("invalid label block id %q", id)
	}
	if page, err = strconv.Atoi(parts[2]); err != nil {
		return "", 0, 0, fmt.Errorf("invalid label block id %q", id)
	}
	return parts[0], index, page, nil
}

func parseSelectedLabel(value string) (domain.Label, error) {
	value = strings.TrimSpace(value)
	if value == unsetOptionValue {
		return domain.LabelUnset, nil
	}
	label, err := domain.ParseLabel(value)
	if err != nil {
		return domain.LabelUnset, err
	}
	if label.IsUnset() {
		return domain.LabelUnset, fmt.Errorf("empty label option")
	}
	return label, nil
}

func labelOption(l domain.Label) *slack.OptionBlockObject {
	value := string(l)
	if l.IsUnset() {
		value = unsetOptionValue
	}
	return slack.NewOptionBlockObject(
		value,
		slack.NewTextBlockObject(slack.PlainTextType, l.DisplayName(), false, false),
		nil,
	)
}

func labelOptions() []*slack.OptionBlockObject {
	opts := []*slack.OptionBlockObject{labelOption(domain.LabelUnset)}
	for _, l := range domain.Labels {
		opts = append(opts, labelOption(l))
	}
	return opts
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func rowNote(r labelRow) string {
	if r.Labeled {
		return fmt.Sprintf("Labeled *%s* by %s at %s", r.Entry.Label.DisplayName(), r.Entry.LabeledBy, r.Entry.Timestamp)
	}
	if r.Suggestion != nil {
		return fmt.Sprintf("Suggested: *%s* (%.0f%%)", domain.Label(r.Suggestion.Label).DisplayName(), r.Suggestion.Confidence*100)
	}
	return ""
}

func buildLabelBlocks(v labelView) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType,
				fmt.Sprintf("%s: page %d of %d", v.Labeler, v.Page+1, v.Pages),
				false, false,
			),
		),
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, "`"+report.FormatProgressLine(v.Progress)+"`", false, false),
		),
	}

	for _, r := range v.Rows {
		sel := slack.NewOptionsSelectBlockElement(
			slack.OptTypeStatic,
			slack.NewTextBlockObject(slack.PlainTextType, "Label", false, false),
			actionLabelSelect,
			labelOptions()...,
		)
		sel.InitialOption = labelOption(r.Entry.Label)

		text := fmt.Sprintf("*#%d*\n*Instruction:* %s\n*Output:* %s",
			r.Index,
			truncateRunes(r.Sample.Instruction, maxSampleTextRunes),
			truncateRunes(r.Sample.Output, maxSampleTextRunes),
		)
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
			nil,
			slack.NewAccessory(sel),
			slack.SectionBlockOptionBlockID(labelBlockID(v.Labeler, r.Index, v.Page)),
		))
		if note := rowNote(r); note != "" {
			blocks = append(blocks, slack.NewContextBlock("",
				slack.NewTextBlockObject(slack.MarkdownType, note, false, false),
			))
		}
	}

	var nav []slack.BlockElement
	if v.Page > 0 {
		nav = append(nav, slack.NewButtonBlockElement(
			actionLabelPrev,
			pageValue(v.Labeler, v.Page-1),
			slack.NewTextBlockObject(slack.PlainTextType, "Prev", false, false),
		))
	}
	if v.Page < v.Pages-1 {
		nav = append(nav, slack.NewButtonBlockElement(
			actionLabelNext,
			pageValue(v.Labeler, v.Page+1),
			slack.NewTextBlockObject(slack.PlainTextType, "Next", false, false),
		))
	}
	nav = append(nav, slack.NewButtonBlockElement(
		actionLabelRefresh,
		pageValue(v.Labeler, v.Page),
		slack.NewTextBlockObject(slack.PlainTextType, "Refresh", false, false),
	))
	if v.CanSuggest {
		nav = append(nav, slack.NewButtonBlockElement(
			actionLabelSuggest,
			pageValue(v.Labeler, v.Page),
			slack.NewTextBlockObject(slack.PlainTextType, "Suggest", false, false),
		).WithStyle(slack.StylePrimary))
	}
	blocks = append(blocks, slack.NewActionBlock("label_nav", nav...))
	return blocks
}

func collectLabelView(wf *workflow.Workflow, db *sql.DB, cfg Config, labeler string, indices []int, page int) labelView {
	page, start, end := pageBounds(len(indices), page, cfg.LabelPageSize)
	v := labelView{
		Labeler:    labeler,
		Page:       page,
		Pages:      pageCount(len(indices), cfg.LabelPageSize),
		Progress:   wf.Progress(labeler),
		CanSuggest: cfg.LLMEnabled(),
	}
	for _, idx := range indices[start:end] {
		sample, ok := wf.Sample(idx)
		if !ok {
			continue
		}
		entry, labeled := wf.Label(idx)
		row := labelRow{Index: idx, Sample: sample, Entry: entry, Labeled: labeled}
		if db != nil && !labeled {
			if s, err := sqlite.GetLatestSuggestion(db, idx); err == nil {
				row.Suggestion = &s
			} else if !errors.Is(err, sql.ErrNoRows) {
				log.Printf("suggestion lookup error index=%d: %v (non-fatal)", idx, err)
			}
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}

func handleLabel(api *slack.Client, wf *workflow.Workflow, db *sql.DB, cfg Config, cmd slack.SlashCommand) {
	explicit, page, err := parseLabelArgs(cmd.Text)
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}
	labeler, err := resolveLabeler(db, cmd.UserID, explicit)
	if errors.Is(err, errNotClaimed) {
		postEphemeral(api, cmd, "You are not bound to a labeler yet. Run `/label-claim user_<n>` first, or name one: `/label user_2`.")
		return
	}
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error looking up your labeler: %v", err))
		log.Printf("label binding lookup error user=%s: %v", cmd.UserID, err)
		return
	}
	if page < 0 {
		indices, _ := wf.Assigned(labeler)
		page = firstOpenPage(indices, cfg.LabelPageSize, func(idx int) bool {
			_, ok := wf.Label(idx)
			return ok
		})
	}
	renderLabelPage(api, wf, db, cfg, cmd.ChannelID, cmd.UserID, labeler, page, "")
}

// renderLabelPage posts the page ephemerally, or replaces the message behind
// responseURL when the request came from one of its buttons.
func renderLabelPage(api *slack.Client, wf *workflow.Workflow, db *sql.DB, cfg Config, channelID, userID, labeler string, page int, responseURL string) {
	indices, ok := wf.Assigned(labeler)
	if !ok {
		postEphemeralTo(api, channelID, userID, fmt.Sprintf("%s has no assignment. Run `/label-assign <n>` first.", labeler))
		return
	}
	if len(indices) == 0 {
		postEphemeralTo(api, channelID, userID, fmt.Sprintf("No samples are assigned to %s.", labeler))
		return
	}

	v := collectLabelView(wf, db, cfg, labeler, indices, page)
	opts := []slack.MsgOption{
		slack.MsgOptionText(fmt.Sprintf("%s: page %d of %d", v.Labeler, v.Page+1, v.Pages), false),
		slack.MsgOptionBlocks(buildLabelBlocks(v)...),
	}

	var err error
	if responseURL != "" {
		_, _, err = api.PostMessage(channelID, append(opts, slack.MsgOptionReplaceOriginal(responseURL))...)
	} else {
		_, err = api.PostEphemeral(channelID, userID, opts...)
	}
	if err != nil {
		log.Printf("Error posting label page labeler=%s page=%d: %v", labeler, v.Page, err)
		postEphemeralTo(api, channelID, userID, "Error rendering the labeling page.")
	}
}

func handleLabelSelect(api *slack.Client, wf *workflow.Workflow, db *sql.DB, cfg Config, cb slack.InteractionCallback, act *slack.BlockAction) {
	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}
	userID := cb.User.ID

	labeler, index, page, err := parseLabelBlockID(act.BlockID)
	if err != nil {
		log.Printf("label select bad block id=%q: %v", act.BlockID, err)
		return
	}
	label, err := parseSelectedLabel(act.SelectedOption.Value)
	if err != nil {
		postEphemeralTo(api, channelID, userID, fmt.Sprintf("Unknown label %q.", act.SelectedOption.Value))
		return
	}

	changed, err := wf.SetLabel(index, label, labeler, userID)
	if errors.Is(err, workflow.ErrSampleNotFound) {
		postEphemeralTo(api, channelID, userID, fmt.Sprintf("Sample #%d no longer exists. The data may have been reset.", index))
		return
	}
	if err != nil {
		postEphemeralTo(api, channelID, userID, fmt.Sprintf("Error saving label: %v", err))
		log.Printf("label select error index=%d: %v", index, err)
		return
	}
	log.Printf("label select index=%d label=%s labeler=%s user=%s changed=%t", index, label, labeler, userID, changed)
	if changed {
		renderLabelPage(api, wf, db, cfg, channelID, userID, labeler, page, cb.ResponseURL)
	}
}

// suggestionRecords turns suggestions into audit rows ordered by index.
func suggestionRecords(suggestions map[int]llm.Suggestion, provider, model string, at time.Time) []sqlite.LabelSuggestion {
	indices := make([]int, 0, len(suggestions))
	for idx := range suggestions {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	out := make([]sqlite.LabelSuggestion, 0, len(indices))
	for _, idx := range indices {
		s := suggestions[idx]
		rec := sqlite.LabelSuggestion{
			SampleIndex: idx,
			Label:       string(s.Label),
			Confidence:  s.Confidence,
			LLMProvider: provider,
			LLMModel:    model,
			CreatedAt:   at,
		}
		if s.FromGuide {
			rec.LLMModel = "label-guide"
		}
		out = append(out, rec)
	}
	return out
}

func handleSuggest(api *slack.Client, wf *workflow.Workflow, db *sql.DB, cfg Config, channelID, userID, labeler string, page int, responseURL string) {
	if !cfg.LLMEnabled() {
		postEphemeralTo(api, channelID, userID, "Label suggestions are disabled (llm_provider: none).")
		return
	}
	indices, ok := wf.Assigned(labeler)
	if !ok || len(indices) == 0 {
		postEphemeralTo(api, channelID, userID, fmt.Sprintf("No samples are assigned to %s.", labeler))
		return
	}
	page, start, end := pageBounds(len(indices), page, cfg.LabelPageSize)

	var items []llm.Item
	for _, idx := range indices[start:end] {
		if _, labeled := wf.Label(idx); labeled {
			continue
		}
		s, ok := wf.Sample(idx)
		if !ok {
			continue
		}
		items = append(items, llm.Item{Index: idx, Instruction: s.Instruction, Output: s.Output})
	}
	if len(items) == 0 {
		postEphemeralTo(api, channelID, userID, "Every sample on this page is already labeled.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), suggestTimeout)
	defer cancel()
	examples := llm.ExamplesFromSamples(wf.LabeledSamples())
	suggestions, usage, err := llm.SuggestLabels(ctx, cfg, items, examples)
	if err != nil {
		postEphemeralTo(api, channelID, userID, fmt.Sprintf("Error getting suggestions: %v", err))
		log.Printf("suggest error labeler=%s page=%d: %v", labeler, page, err)
		return
	}

	records := suggestionRecords(suggestions, cfg.LLMProvider, llm.ModelName(cfg), time.Now().In(cfg.Location))
	if err := sqlite.InsertLabelSuggestions(db, records); err != nil {
		log.Printf("suggest store error: %v (non-fatal)", err)
	}
	log.Printf("suggest done labeler=%s page=%d items=%d suggested=%d tokens=%d", labeler, page, len(items), len(suggestions), usage.TotalTokens())

	renderLabelPage(api, wf, db, cfg, channelID, userID, labeler, page, responseURL)
	postEphemeralTo(api, channelID, userID, fmt.Sprintf("Suggested labels for %d of %d sample(s) (tokens used: %s). Suggestions are hints; the label is your call.",
		len(suggestions), len(items), formatTokenCount(usage.TotalTokens())))
}
