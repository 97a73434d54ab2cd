package nudge

import (
	"strings"
	"testing"
	"time"

	"labelbot/internal/domain"

	"github.com/robfig/cron/v3"
)

func TestPendingLabelersSkipsEmptyAndDone(t *testing.T) {
	progress := []domain.Progress{
		{Labeler: "user_1", Completed: 5, Total: 5},
		{Labeler: "user_2", Completed: 1, Total: 5},
		{Labeler: "user_3"},
	}
	got := PendingLabelers(progress)
	if len(got) != 1 || got[0].Labeler != "user_2" {
		t.Fatalf("unexpected pending labelers: %+v", got)
	}
}

func TestPlanReminders(t *testing.T) {
	progress := []domain.Progress{
		{Labeler: "user_1", Completed: 0, Total: 3},
		{Labeler: "user_2", Completed: 2, Total: 3},
		{Labeler: "user_3", Completed: 3, Total: 3},
	}
	bindings := map[string][]string{
		"user_1": {"U1", "U9"},
		"user_3": {"U3"},
	}
	reminders, unclaimed := PlanReminders(progress, bindings)
	if len(reminders) != 2 {
		t.Fatalf("expected 2 reminders, got %+v", reminders)
	}
	if reminders[0].SlackUserID != "U1" || reminders[1].SlackUserID != "U9" {
		t.Fatalf("unexpected reminder order: %+v", reminders)
	}
	if len(unclaimed) != 1 || unclaimed[0] != "user_2" {
		t.Fatalf("unexpected unclaimed labelers: %v", unclaimed)
	}
}

func TestBuildNudgeMessage(t *testing.T) {
	msg := BuildNudgeMessage("Civic QA", domain.Progress{Labeler: "user_2", Completed: 1, Total: 4})
	if !strings.Contains(msg, "3 of 4 samples left as user_2 (25.0% done)") {
		t.Fatalf("unexpected message: %s", msg)
	}
	if !strings.Contains(msg, "`/label user_2`") {
		t.Fatalf("expected /label hint: %s", msg)
	}
}

func TestScheduleNextRun(t *testing.T) {
	sched, err := cron.ParseStandard("0 10 * * 5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// Wednesday.
	now := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	next := sched.Next(now)
	want := time.Date(2026, 1, 9, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %s, want %s", next, want)
	}
}
