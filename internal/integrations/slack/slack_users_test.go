package slackbot

import (
	"strings"
	"testing"

	"github.com/slack-go/slack"
)

func TestParseUserMention(t *testing.T) {
	tests := map[string]string{
		"<@U0123ABCD>":      "U0123ABCD",
		"<@U0123ABCD|kim>":  "U0123ABCD",
		"@kim.minji":        "kim.minji",
		"  Kim Minji ":      "Kim Minji",
		"<#C0123ABCD|chan>": "<#C0123ABCD|chan>",
	}
	for in, want := range tests {
		if got := parseUserMention(in); got != want {
			t.Fatalf("parseUserMention(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsLikelySlackID(t *testing.T) {
	for _, id := range []string{"U0123ABCD", "W9876ZYXW1"} {
		if !isLikelySlackID(id) {
			t.Fatalf("expected %q to look like a Slack id", id)
		}
	}
	for _, id := range []string{"U123", "u0123abcd", "C0123ABCD", "kim.minji"} {
		if isLikelySlackID(id) {
			t.Fatalf("did not expect %q to look like a Slack id", id)
		}
	}
}

func TestMatchUserNames(t *testing.T) {
	users := []slack.User{
		{ID: "U1", Name: "minji", RealName: "Kim Minji"},
		{ID: "U2", Name: "jlee", RealName: "Lee Jisoo", Profile: slack.UserProfile{DisplayName: "지수"}},
		{ID: "U3", Name: "jpark", RealName: "Park Jisoo"},
		{ID: "U4", Name: "labelbot", RealName: "Label Bot", IsBot: true},
	}

	ids, unresolved := matchUserNames(users, []string{"minji", "지수", "Lee", "Jisoo", "Label Bot"})
	if strings.Join(ids, ",") != "U1,U2,U2" {
		t.Fatalf("unexpected ids %v", ids)
	}
	// "Jisoo" matches two people and bots are never matched.
	if strings.Join(unresolved, ",") != "Jisoo,Label Bot" {
		t.Fatalf("unexpected unresolved %v", unresolved)
	}
}

func TestUniqueStrings(t *testing.T) {
	got := uniqueStrings([]string{"U1", "", "U2", "U1"})
	if strings.Join(got, ",") != "U1,U2" {
		t.Fatalf("unexpected %v", got)
	}
}
