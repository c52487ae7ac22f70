package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// BannedUser is one record of the global ban registry. Absence means not banned.
type BannedUser struct {
	ID         int64     `json:"id"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recorded_at"`
	Message    *string   `json:"message,omitempty"`
}

// AutomatedBanReasons mark bans issued by the automatic modules. A manual
// global ban never overwrites them.
var AutomatedBanReasons = []string{"spambot", "vollzugsanstalt", "kriminalamt"}

var spamAddPattern = regexp.MustCompile(`spam adding (?P<count>\d+)\+ members`)

// IsAutomated reports whether reason was set by an automatic module.
func IsAutomated(reason string) bool {
	lower := strings.ToLower(reason)
	for _, r := range AutomatedBanReasons {
		if strings.Contains(lower, r) {
			return true
		}
	}
	return false
}

// MergeReason sums the member counts when both the previous and the new
// reason are "spam adding N+ members". Otherwise the new reason wins.
func MergeReason(previous, next string) string {
	cur := spamAddPattern.FindStringSubmatch(next)
	prev := spamAddPattern.FindStringSubmatch(previous)
	if cur == nil || prev == nil {
		return next
	}
	a, errA := strconv.Atoi(cur[1])
	b, errB := strconv.Atoi(prev[1])
	if errA != nil || errB != nil {
		return next
	}
	return fmt.Sprintf("spam adding %d+ members", a+b)
}

// DedupeLastWins collapses records with the same id, keeping the position of
// the first occurrence and the values of the last one.
func DedupeLastWins(records []BannedUser) []BannedUser {
	pos := make(map[int64]int, len(records))
	out := make([]BannedUser, 0, len(records))
	for _, r := range records {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// ParseUserID parses a user id as it appears in CSV files and commands.
func ParseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: user id %q", ErrInvalidInput, s)
	}
	return id, nil
}

// ValidateBatch rejects a batch that contains a record with a non-positive id.
func ValidateBatch(records []BannedUser) error {
	for i, r := range records {
		if r.ID <= 0 {
			return fmt.Errorf("%w: record %d has id %d", ErrInvalidInput, i, r.ID)
		}
	}
	return nil
}
