package slackbot

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"labelbot/internal/export"
	llm "labelbot/internal/integrations/llm"
	"labelbot/internal/report"
	"labelbot/internal/storage/sqlite"
	"labelbot/internal/workflow"

	"github.com/slack-go/slack"
)

func handleUploadHelp(api *slack.Client, wf *workflow.Workflow, cfg Config, cmd slack.SlashCommand) {
	lines := []string{
		"*Uploading samples*",
		"DM me one or more `.json` files. Each file must be a JSON array of objects with `instruction` and `output` strings:",
		"```[{\"instruction\": \"...\", \"output\": \"...\"}]```",
		"Files shared together are stored as one batch, appended after the existing samples. If any file is malformed, nothing is stored.",
		"DM me a `.png`, `.jpg` or `.jpeg` to replace the labeling policy image.",
	}
	if cfg.InboxDir != "" && cfg.InboxSchedule != "" {
		lines = append(lines, fmt.Sprintf("Files dropped into `%s` are imported on schedule `%s`.", cfg.InboxDir, cfg.InboxSchedule))
	}
	_, hasPolicy := wf.PolicyImage()
	lines = append(lines, "", fmt.Sprintf("The store holds %d sample(s). Policy image: %s.", wf.SampleCount(), yesNo(hasPolicy)))
	postEphemeral(api, cmd, strings.Join(lines, "\n"))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func handleAssign(api *slack.Client, wf *workflow.Workflow, cfg Config, cmd slack.SlashCommand) {
	n, err := parseAssignArg(cmd.Text)
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}
	if wf.SampleCount() == 0 {
		postEphemeral(api, cmd, "There are no samples yet. DM me a .json batch first (see `/label-upload`).")
		return
	}

	assignments, err := wf.Partition(n, cmd.UserID)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error assigning samples: %v", err))
		log.Printf("label-assign error user=%s n=%d: %v", cmd.UserID, n, err)
		return
	}

	msg := formatAssignments(wf.SampleCount(), assignments)
	if orphaned := wf.Orphaned(); len(orphaned) > 0 {
		msg += fmt.Sprintf("\n%d labeled sample(s) are outside every assignment.", len(orphaned))
	}
	_, _, err = api.PostMessage(cmd.ChannelID, slack.MsgOptionText(msg, false))
	if err != nil {
		log.Printf("label-assign post error channel=%s: %v", cmd.ChannelID, err)
		postEphemeral(api, cmd, msg)
	}
	log.Printf("label-assign done user=%s n=%d samples=%d", cmd.UserID, n, wf.SampleCount())
}

func handleProgress(api *slack.Client, wf *workflow.Workflow, cfg Config, cmd slack.SlashCommand) {
	postEphemeral(api, cmd, formatProgressMessage(cfg.ProjectName, wf.SampleCount(), wf.AllProgress(), wf.Orphaned()))
}

func handleExport(api *slack.Client, wf *workflow.Workflow, db *sql.DB, cfg Config, cmd slack.SlashCommand) {
	format, err := export.ParseFormat(cmd.Text, cfg.ExportFormat)
	if err != nil {
		postEphemeral(api, cmd, "Usage: /label-export [xlsx|csv]")
		return
	}

	now := time.Now().In(cfg.Location)
	rows := wf.Export()
	filePath, err := export.Write(rows, format, cfg.ExportOutputDir, now)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error writing export: %v", err))
		log.Printf("label-export write error: %v", err)
		return
	}
	fi, err := os.Stat(filePath)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error reading export: %v", err))
		return
	}

	_, err = api.UploadFileV2(slack.UploadFileV2Parameters{
		File:           filePath,
		FileSize:       int(fi.Size()),
		Filename:       filepath.Base(filePath),
		Channel:        cmd.ChannelID,
		Title:          fmt.Sprintf("%s labels (%s)", cfg.ProjectName, now.Format("2006-01-02 15:04")),
		InitialComment: formatExportSummary(rows),
	})
	if err != nil {
		log.Printf("Error uploading export file: %v", err)
		postEphemeral(api, cmd, "Error uploading export file to channel. Check bot permissions.")
		return
	}

	msg := fmt.Sprintf("%s.\nSaved to: %s", formatExportSummary(rows), filePath)
	content := report.RenderMarkdown(report.Collect(wf, db, cfg.ProjectName, now))
	if reportPath, err := report.WriteReportFile(content, cfg.ExportOutputDir, now, cfg.ProjectName); err != nil {
		log.Printf("label-export report error: %v (non-fatal)", err)
	} else {
		msg += fmt.Sprintf("\nProgress report: %s", reportPath)
	}
	postEphemeral(api, cmd, msg)
	log.Printf("label-export done format=%s rows=%d", format, len(rows))
}

func openResetModal(api *slack.Client, wf *workflow.Workflow, cmd slack.SlashCommand) {
	prompt := fmt.Sprintf("Delete all *%d* sample(s), every assignment and every label?\n\n"+
		"The policy image and the audit history are kept. This cannot be undone.", wf.SampleCount())

	view := slack.ModalViewRequest{
		Type:            slack.VTModal,
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Reset labeling data", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Reset", false, false),
		CallbackID:      modalResetCallbackID,
		PrivateMetadata: resetMetaPrefix + "|" + cmd.ChannelID,
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, prompt, false, false),
				nil, nil,
			),
		}},
	}
	if _, err := api.OpenView(cmd.TriggerID, view); err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Unable to open reset confirmation: %v", err))
	}
}

func resetAction(api *slack.Client, wf *workflow.Workflow, channelID, userID string) {
	removed, err := wf.Reset(userID)
	if err != nil {
		postEphemeralTo(api, channelID, userID, fmt.Sprintf("Reset failed after removing %d file(s): %v", len(removed), err))
		log.Printf("label-reset error user=%s: %v", userID, err)
		return
	}
	msg := fmt.Sprintf("<@%s> reset the labeling data (%d file(s) removed). The policy image was kept.", userID, len(removed))
	if _, _, err := api.PostMessage(channelID, slack.MsgOptionText(msg, false)); err != nil {
		log.Printf("label-reset post error channel=%s: %v", channelID, err)
		postEphemeralTo(api, channelID, userID, msg)
	}
}

func handlePolicy(api *slack.Client, wf *workflow.Workflow, cmd slack.SlashCommand) {
	path, ok := wf.PolicyImage()
	if !ok {
		postEphemeral(api, cmd, "No policy image yet. DM me a .png, .jpg or .jpeg to set one.")
		return
	}
	fi, err := os.Stat(path)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error reading policy image: %v", err))
		return
	}
	_, err = api.UploadFileV2(slack.UploadFileV2Parameters{
		File:     path,
		FileSize: int(fi.Size()),
		Filename: filepath.Base(path),
		Channel:  cmd.ChannelID,
		Title:    "Labeling policy",
		AltTxt:   "Labeling policy",
	})
	if err != nil {
		log.Printf("Error uploading policy image: %v", err)
		postEphemeral(api, cmd, "Error uploading the policy image. Check bot permissions.")
	}
}

func handleClaim(api *slack.Client, wf *workflow.Workflow, db *sql.DB, cfg Config, cmd slack.SlashCommand) {
	labeler, target, err := parseClaimArgs(cmd.Text)
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}
	if labeler == "" {
		bindings, err := sqlite.GetLabelerBindings(db)
		if err != nil {
			postEphemeral(api, cmd, fmt.Sprintf("Error loading bindings: %v", err))
			return
		}
		postEphemeral(api, cmd, formatBindings(wf.Labelers(), bindings))
		return
	}

	userID := cmd.UserID
	if target != "" {
		ids, unresolved, err := resolveUserIDs(api, []string{target})
		if err != nil || len(ids) != 1 || len(unresolved) > 0 {
			postEphemeral(api, cmd, fmt.Sprintf("Could not find exactly one Slack user for %q.", target))
			return
		}
		userID = ids[0]
	}

	if err := sqlite.BindLabeler(db, userID, labeler, time.Now().In(cfg.Location)); err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error saving binding: %v", err))
		log.Printf("label-claim error user=%s labeler=%s: %v", userID, labeler, err)
		return
	}

	msg := fmt.Sprintf("%s is now bound to %s.", displayName(api, userID), labeler)
	if indices, ok := wf.Assigned(labeler); ok {
		msg += fmt.Sprintf(" %d sample(s) assigned. Run `/label` to start.", len(indices))
	} else {
		msg += " That labeler has no assignment yet."
	}
	postEphemeral(api, cmd, msg)
	log.Printf("label-claim user=%s labeler=%s by=%s", userID, labeler, cmd.UserID)
}

func handleHistory(api *slack.Client, wf *workflow.Workflow, db *sql.DB, cmd slack.SlashCommand) {
	idx, err := parseIndexArg(cmd.Text, "/label-history <index>")
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}
	events, err := sqlite.GetLabelHistory(db, idx, 10)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error loading history: %v", err))
		return
	}
	if _, ok := wf.Sample(idx); !ok && len(events) == 0 {
		postEphemeral(api, cmd, fmt.Sprintf("Sample #%d does not exist.", idx))
		return
	}
	entry, ok := wf.Label(idx)
	postEphemeral(api, cmd, formatHistory(idx, entry, ok, events))
}

func handleTerm(api *slack.Client, cfg Config, cmd slack.SlashCommand) {
	if cfg.LLMLabelGuidePath == "" {
		postEphemeral(api, cmd, "No label guide is configured (llm_label_guide_path).")
		return
	}
	label, phrase, err := parseTermArgs(cmd.Text)
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}
	if err := llm.AppendGuideTerm(cfg.LLMLabelGuidePath, phrase, label); err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error updating guide: %v", err))
		log.Printf("label-term error: %v", err)
		return
	}
	postEphemeral(api, cmd, fmt.Sprintf("Added %q → %s to the label guide.", phrase, label.DisplayName()))
	log.Printf("label-term added phrase=%q label=%s by=%s", phrase, label, cmd.UserID)
}
