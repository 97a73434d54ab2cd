package nudge

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"labelbot/internal/config"
	"labelbot/internal/domain"
	"labelbot/internal/report"
	"labelbot/internal/storage/sqlite"
	"labelbot/internal/workflow"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

type Config = config.Config

// Reminder is one DM to send.
type Reminder struct {
	SlackUserID string
	Progress    domain.Progress
}

// PendingLabelers keeps labelers with a non-empty, unfinished assignment.
func PendingLabelers(progress []domain.Progress) []domain.Progress {
	var out []domain.Progress
	for _, p := range progress {
		if p.Total > 0 && !p.Done() {
			out = append(out, p)
		}
	}
	return out
}

// PlanReminders pairs pending labelers with the Slack users bound to them.
// Labelers nobody has claimed are returned separately.
func PlanReminders(progress []domain.Progress, bindings map[string][]string) ([]Reminder, []string) {
	var reminders []Reminder
	var unclaimed []string
	for _, p := range PendingLabelers(progress) {
		users := bindings[p.Labeler]
		if len(users) == 0 {
			unclaimed = append(unclaimed, p.Labeler)
			continue
		}
		for _, userID := range users {
			reminders = append(reminders, Reminder{SlackUserID: userID, Progress: p})
		}
	}
	return reminders, unclaimed
}

func BuildNudgeMessage(project string, p domain.Progress) string {
	remaining := p.Total - p.Completed
	return fmt.Sprintf(
		"Friendly reminder for *%s*: you have %d of %d samples left as %s (%s done).\n"+
			"Continue with `/label %s`.",
		project, remaining, p.Total, p.Labeler, p.Percent(), p.Labeler,
	)
}

func sendNudges(api *slack.Client, cfg Config, wf *workflow.Workflow, db *sql.DB) {
	bindings, err := sqlite.GetLabelerBindings(db)
	if err != nil {
		log.Printf("Error loading labeler bindings: %v", err)
		return
	}
	reminders, unclaimed := PlanReminders(wf.AllProgress(), bindings)
	if len(unclaimed) > 0 {
		log.Printf("Nudge: unclaimed labelers with pending work: %s", strings.Join(unclaimed, ", "))
	}

	for _, r := range reminders {
		channel, _, _, err := api.OpenConversation(&slack.OpenConversationParameters{
			Users: []string{r.SlackUserID},
		})
		if err != nil {
			log.Printf("Error opening DM with %s: %v", r.SlackUserID, err)
			continue
		}
		_, _, err = api.PostMessage(channel.ID, slack.MsgOptionText(BuildNudgeMessage(cfg.ProjectName, r.Progress), false))
		if err != nil {
			log.Printf("Error sending nudge to %s: %v", r.SlackUserID, err)
		} else {
			log.Printf("Sent nudge to %s labeler=%s", r.SlackUserID, r.Progress.Labeler)
		}
	}

	now := time.Now().In(cfg.Location)
	content := report.RenderMarkdown(report.Collect(wf, db, cfg.ProjectName, now))
	if path, err := report.WriteReportFile(content, cfg.ExportOutputDir, now, cfg.ProjectName); err != nil {
		log.Printf("Error writing progress report: %v (non-fatal)", err)
	} else {
		log.Printf("Progress report written: %s", path)
	}
	if cfg.ReportChannelID != "" {
		if _, _, err := api.PostMessage(cfg.ReportChannelID, slack.MsgOptionText(content, false)); err != nil {
			log.Printf("Nudge summary post error: %v", err)
		}
	}
}

// StartNudgeScheduler DMs labelers with unfinished assignments on
// nudge_schedule, a standard 5-field cron expression.
func StartNudgeScheduler(cfg Config, api *slack.Client, wf *workflow.Workflow, db *sql.DB) {
	schedule := strings.TrimSpace(cfg.NudgeSchedule)
	if schedule == "" {
		log.Println("Nudge disabled (nudge_schedule not set)")
		return
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		log.Printf("Invalid nudge_schedule '%s': %v, nudge disabled", schedule, err)
		return
	}
	log.Printf("Nudge scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next nudge at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)
			sendNudges(api, cfg, wf, db)
		}
	}()
}
