package slackbot

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"labelbot/internal/workflow"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const (
	actionLabelSelect  = "label_select"
	actionLabelPrev    = "label_page_prev"
	actionLabelNext    = "label_page_next"
	actionLabelSuggest = "label_suggest"
	actionLabelRefresh = "label_refresh"

	modalResetCallbackID = "label_reset_modal"
	resetMetaPrefix      = "reset:"
)

func StartSlackBot(cfg Config, db *sql.DB, wf *workflow.Workflow, api *slack.Client) error {
	client := socketmode.New(api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go handleSlashCommand(api, wf, db, cfg, cmd)
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				go handleEventsAPI(api, wf, cfg, eventsAPIEvent)
			case socketmode.EventTypeInteractive:
				client.Ack(*evt.Request)
				callback, ok := evt.Data.(slack.InteractionCallback)
				if !ok {
					continue
				}
				go handleInteraction(api, wf, db, cfg, callback)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

func handleSlashCommand(api *slack.Client, wf *workflow.Workflow, db *sql.DB, cfg Config, cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/label-upload":
		handleUploadHelp(api, wf, cfg, cmd)
	case "/label-assign":
		handleAssign(api, wf, cfg, cmd)
	case "/label-progress":
		handleProgress(api, wf, cfg, cmd)
	case "/label-export":
		handleExport(api, wf, db, cfg, cmd)
	case "/label-reset":
		openResetModal(api, wf, cmd)
	case "/label-policy":
		handlePolicy(api, wf, cmd)
	case "/label-claim":
		handleClaim(api, wf, db, cfg, cmd)
	case "/label":
		handleLabel(api, wf, db, cfg, cmd)
	case "/label-history":
		handleHistory(api, wf, db, cmd)
	case "/label-term":
		handleTerm(api, cfg, cmd)
	case "/label-help":
		handleHelp(api, cfg, cmd)
	}
}

func handleEventsAPI(api *slack.Client, wf *workflow.Workflow, cfg Config, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MemberJoinedChannelEvent:
		handleMemberJoined(api, cfg, ev)
	case *slackevents.MessageEvent:
		if ev.SubType == "file_share" && ev.ChannelType == "im" && ev.BotID == "" {
			handleFileShare(api, wf, ev)
		}
	}
}

func handleMemberJoined(api *slack.Client, cfg Config, ev *slackevents.MemberJoinedChannelEvent) {
	log.Printf("member-joined user=%s channel=%s", ev.User, ev.Channel)

	intro := fmt.Sprintf("Welcome to %s! I'm LabelBot. I hand out instruction/output samples and keep track of their labels.\n\n"+
		"Here's how to get started:\n"+
		"• `/label-claim user_<n>` to tell me which labeler slot is yours\n"+
		"• `/label` to open your next page of samples\n"+
		"• `/label-policy` to see the labeling policy\n"+
		"• `/label-help` for every command",
		cfg.ProjectName,
	)

	_, _, err := api.PostMessage(ev.Channel,
		slack.MsgOptionText(intro, false),
		slack.MsgOptionPostEphemeral(ev.User),
	)
	if err != nil {
		log.Printf("member-joined intro error user=%s channel=%s: %v", ev.User, ev.Channel, err)
	}
}

func postEphemeral(api *slack.Client, cmd slack.SlashCommand, text string) {
	postEphemeralTo(api, cmd.ChannelID, cmd.UserID, text)
}

func postEphemeralTo(api *slack.Client, channelID, userID, text string) {
	_, err := api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}

func handleInteraction(api *slack.Client, wf *workflow.Workflow, db *sql.DB, cfg Config, cb slack.InteractionCallback) {
	switch cb.Type {
	case slack.InteractionTypeBlockActions:
		handleBlockActions(api, wf, db, cfg, cb)
	case slack.InteractionTypeViewSubmission:
		handleViewSubmission(api, wf, cb)
	}
}

func handleBlockActions(api *slack.Client, wf *workflow.Workflow, db *sql.DB, cfg Config, cb slack.InteractionCallback) {
	if len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	act := cb.ActionCallback.BlockActions[0]
	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}
	userID := cb.User.ID

	switch act.ActionID {
	case actionLabelPrev, actionLabelNext, actionLabelRefresh:
		labeler, page, err := parsePageValue(act.Value)
		if err != nil {
			postEphemeralTo(api, channelID, userID, "Invalid page.")
			return
		}
		renderLabelPage(api, wf, db, cfg, channelID, userID, labeler, page, cb.ResponseURL)
	case actionLabelSelect:
		handleLabelSelect(api, wf, db, cfg, cb, act)
	case actionLabelSuggest:
		labeler, page, err := parsePageValue(act.Value)
		if err != nil {
			postEphemeralTo(api, channelID, userID, "Invalid page.")
			return
		}
		handleSuggest(api, wf, db, cfg, channelID, userID, labeler, page, cb.ResponseURL)
	}
}

func handleViewSubmission(api *slack.Client, wf *workflow.Workflow, cb slack.InteractionCallback) {
	if cb.View.CallbackID != modalResetCallbackID {
		return
	}
	meta := strings.TrimSpace(cb.View.PrivateMetadata)
	parts := strings.SplitN(meta, "|", 2)
	if len(parts) != 2 || parts[0] != resetMetaPrefix {
		return
	}
	channelID := strings.TrimSpace(parts[1])
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}
	if channelID == "" {
		channelID = cb.Channel.ID
	}
	resetAction(api, wf, channelID, cb.User.ID)
}

func handleHelp(api *slack.Client, cfg Config, cmd slack.SlashCommand) {
	postEphemeral(api, cmd, helpText(cfg))
}

func helpText(cfg Config) string {
	lines := []string{
		fmt.Sprintf("*LabelBot Commands* (%s)", cfg.ProjectName),
		"",
		"*Labeling*",
		"`/label-claim user_<n>` — Bind yourself to a labeler slot. `/label-claim` alone lists bindings.",
		"`/label [user_<n>] [page]` — Open a page of your assigned samples and pick labels.",
		"`/label-history <index>` — Show who labeled a sample and when.",
		"`/label-policy` — Show the labeling policy image.",
		"",
		"*Administration*",
		"`/label-upload` — How to upload sample batches (DM me .json files) and the policy image.",
		"`/label-assign <n>` — Split every sample across n labelers.",
		"`/label-progress` — Per-labeler progress and orphaned samples.",
		"`/label-export [xlsx|csv]` — Export every sample with its label (if any) and a progress report.",
		"`/label-reset` — Delete samples, assignments and labels (asks first).",
	}
	if cfg.LLMEnabled() {
		lines = append(lines,
			"`/label-term <label> <phrase>` — Teach the suggestion guide that a phrase implies a label.",
		)
	}
	lines = append(lines, "`/label-help` — Show this help.")
	return strings.Join(lines, "\n")
}
