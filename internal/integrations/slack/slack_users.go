package slackbot

import (
	"log"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/slack-go/slack"
)

const userCacheTTL = 5 * time.Minute

var userCache struct {
	sync.Mutex
	users     []slack.User
	fetchedAt time.Time
}

// Slack escapes user mentions in slash command text as <@U123> or <@U123|name>.
var mentionPattern = regexp.MustCompile(`^<@([A-Z0-9]+)(?:\|[^>]*)?>$`)

func getCachedUsers(api *slack.Client) ([]slack.User, error) {
	userCache.Lock()
	defer userCache.Unlock()

	if userCache.users != nil && time.Since(userCache.fetchedAt) < userCacheTTL {
		return userCache.users, nil
	}

	users, err := api.GetUsers()
	if err != nil {
		return nil, err
	}
	userCache.users = users
	userCache.fetchedAt = time.Now()
	return users, nil
}

// parseUserMention strips mention syntax: "<@U1|bob>" -> "U1", "@bob" -> "bob".
func parseUserMention(raw string) string {
	val := strings.TrimSpace(raw)
	if m := mentionPattern.FindStringSubmatch(val); m != nil {
		return m[1]
	}
	return strings.TrimPrefix(val, "@")
}

func resolveUserIDs(api *slack.Client, identifiers []string) ([]string, []string, error) {
	var ids []string
	var names []string

	for _, raw := range identifiers {
		val := parseUserMention(raw)
		if val == "" {
			continue
		}
		if isLikelySlackID(val) {
			ids = append(ids, val)
		} else {
			names = append(names, val)
		}
	}

	if len(names) == 0 {
		log.Printf("resolve users: ids=%d names=0", len(ids))
		return uniqueStrings(ids), nil, nil
	}

	users, err := getCachedUsers(api)
	if err != nil {
		log.Printf("resolve users: get users error: %v", err)
		return uniqueStrings(ids), names, err
	}

	matched, unresolved := matchUserNames(users, names)
	ids = append(ids, matched...)
	log.Printf("resolve users: ids=%d unresolved=%d", len(ids), len(unresolved))
	return uniqueStrings(ids), unresolved, nil
}

// matchUserNames maps handles and names to user ids. Exact matches on the
// handle, real name or display name win; otherwise a name resolves when its
// tokens match exactly one user.
func matchUserNames(users []slack.User, names []string) ([]string, []string) {
	nameToID := make(map[string]string)
	for _, user := range users {
		if user.Deleted || user.IsBot {
			continue
		}
		addName := func(n string) {
			n = strings.ToLower(strings.TrimSpace(n))
			if n == "" {
				return
			}
			if _, exists := nameToID[n]; !exists {
				nameToID[n] = user.ID
			}
		}
		addName(user.Name)
		addName(user.RealName)
		addName(user.Profile.DisplayName)
	}

	var ids, unresolved []string
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if id, ok := nameToID[key]; ok {
			ids = append(ids, id)
			continue
		}
		var candidates []string
		for _, user := range users {
			if user.Deleted || user.IsBot {
				continue
			}
			if nameMatches(name, user.RealName) || nameMatches(name, user.Profile.DisplayName) {
				candidates = append(candidates, user.ID)
			}
		}
		candidates = uniqueStrings(candidates)
		if len(candidates) == 1 {
			ids = append(ids, candidates[0])
		} else {
			unresolved = append(unresolved, name)
		}
	}
	return ids, unresolved
}

func displayName(api *slack.Client, userID string) string {
	user, err := api.GetUserInfo(userID)
	if err != nil {
		return "<@" + userID + ">"
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	if user.RealName != "" {
		return user.RealName
	}
	return userID
}

func isLikelySlackID(val string) bool {
	if len(val) < 9 {
		return false
	}
	for i, r := range val {
		if i == 0 {
			if r != 'U' && r != 'W' {
				return false
			}
			continue
		}
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func uniqueStrings(vals []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range vals {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

var parenPattern = regexp.MustCompile(`\([^)]*\)|（[^）]*）`)

// normalizeNameTokens lowercases s, drops parenthesized notes and splits on
// anything that is not a letter or digit. Hangul names survive intact.
func normalizeNameTokens(s string) []string {
	if s == "" {
		return nil
	}
	s = parenPattern.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return nil
	}
	return parts
}

func nameMatches(query, candidate string) bool {
	queryTokens := normalizeNameTokens(query)
	candTokens := normalizeNameTokens(candidate)
	if len(queryTokens) == 0 || len(candTokens) == 0 {
		return false
	}
	return allIn(queryTokens, candTokens)
}

func allIn(needles, haystack []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, t := range haystack {
		set[t] = true
	}
	for _, t := range needles {
		if !set[t] {
			return false
		}
	}
	return true
}
