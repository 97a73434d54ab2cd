package inbox

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"labelbot/internal/config"
	"labelbot/internal/workflow"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

type Config = config.Config

const (
	processedDir = "processed"
	failedDir    = "failed"
	importActor  = "inbox"
)

// ImportResult tracks what happened to each inbox file.
type ImportResult struct {
	Files    int
	Imported int
	Samples  int
	Failed   []string
	Errors   []string
}

// ImportInbox uploads every *.json file in dir, in name order, one upload per
// file. Imported files move to processed/, malformed ones to failed/. It has
// no Slack dependency so the scheduler and tests share it.
func ImportInbox(wf *workflow.Workflow, dir string, now time.Time) (ImportResult, error) {
	var result ImportResult
	names, err := inboxFiles(dir)
	if err != nil {
		return result, err
	}
	result.Files = len(names)
	stamp := now.Format("20060102_150405")

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		res, err := wf.Upload([]workflow.Batch{{Name: name, Data: data}}, importActor)
		var uploadErr *workflow.UploadError
		switch {
		case errors.As(err, &uploadErr):
			log.Printf("inbox malformed file=%s: %v", name, uploadErr.Err)
			result.Failed = append(result.Failed, name)
			if err := moveTo(dir, failedDir, name, stamp); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			}
			continue
		case err != nil:
			// Store errors leave the file in place for the next run.
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		result.Imported++
		result.Samples += res.Added
		log.Printf("inbox imported file=%s samples=%d batch=%s", name, res.Added, res.File)
		if err := moveTo(dir, processedDir, name, stamp); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
		}
	}
	return result, nil
}

func inboxFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func moveTo(dir, sub, name, stamp string) error {
	target := filepath.Join(dir, sub)
	if err := os.MkdirAll(target, 0755); err != nil {
		return err
	}
	return os.Rename(filepath.Join(dir, name), filepath.Join(target, stamp+"_"+name))
}

// FormatImportSummary returns a human-readable summary of an ImportResult.
func FormatImportSummary(result ImportResult) string {
	if result.Files == 0 {
		return "Inbox empty, nothing to import."
	}
	msg := fmt.Sprintf("Imported %d of %d inbox files (%d samples)", result.Imported, result.Files, result.Samples)
	if len(result.Failed) > 0 {
		msg += fmt.Sprintf(", %d malformed moved to %s/: %s", len(result.Failed), failedDir, strings.Join(result.Failed, ", "))
	}
	msg += "."
	if len(result.Errors) > 0 {
		msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
	}
	return msg
}

// StartInboxScheduler imports inbox_dir on inbox_schedule and posts a summary
// to the report channel when anything was found.
func StartInboxScheduler(cfg Config, api *slack.Client, wf *workflow.Workflow) {
	schedule := strings.TrimSpace(cfg.InboxSchedule)
	if schedule == "" {
		log.Println("Inbox import disabled (inbox_schedule not set)")
		return
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		log.Printf("Invalid inbox_schedule '%s': %v, inbox import disabled", schedule, err)
		return
	}
	log.Printf("Inbox import scheduled (cron: %s) from %s", schedule, cfg.InboxDir)

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next inbox import at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			result, importErr := ImportInbox(wf, cfg.InboxDir, time.Now().In(cfg.Location))
			if importErr != nil {
				log.Printf("Inbox import error: %v", importErr)
				continue
			}
			summary := FormatImportSummary(result)
			log.Printf("Inbox import complete: %s", summary)

			if cfg.ReportChannelID != "" && result.Files > 0 {
				_, _, postErr := api.PostMessage(cfg.ReportChannelID, slack.MsgOptionText(
					fmt.Sprintf("Inbox import complete: %s", summary), false))
				if postErr != nil {
					log.Printf("Inbox import post error: %v", postErr)
				}
			}
		}
	}()
}
