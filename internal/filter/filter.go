package filter

import (
	"strings"
	"time"

	"github.com/brandon/unibox/pkg/types"
)

// DateRange narrows messages by received time relative to now.
type DateRange string

const (
	DateAll   DateRange = "all"
	DateToday DateRange = "today"
	DateWeek  DateRange = "week"
	DateMonth DateRange = "month"
)

// Criteria is the set of client-side predicates applied to a page of
// canonical messages. All set predicates are ANDed. SearchText is a
// case-insensitive substring match over sender name/address, subject
// and preview; it never triggers a server round-trip.
type Criteria struct {
	UnreadOnly         bool
	StarredOnly        bool
	HasAttachmentsOnly bool
	DateRange          DateRange
	SearchText         string
}

// Empty reports whether the criteria would pass every message through.
func (c Criteria) Empty() bool {
	return !c.UnreadOnly && !c.StarredOnly && !c.HasAttachmentsOnly &&
		(c.DateRange == "" || c.DateRange == DateAll) &&
		strings.TrimSpace(c.SearchText) == ""
}

// Apply filters messages by the criteria, preserving order. The input
// slice is never mutated.
func Apply(messages []types.Message, c Criteria) []types.Message {
	return applyAt(messages, c, time.Now())
}

// applyAt is Apply with an explicit reference time for the date-range
// predicate.
func applyAt(messages []types.Message, c Criteria, now time.Time) []types.Message {
	if c.Empty() {
		out := make([]types.Message, len(messages))
		copy(out, messages)
		return out
	}

	needle := strings.ToLower(strings.TrimSpace(c.SearchText))
	cutoff, hasCutoff := rangeCutoff(c.DateRange, now)

	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if c.UnreadOnly && m.IsRead {
			continue
		}
		if c.StarredOnly && !m.IsStarred {
			continue
		}
		if c.HasAttachmentsOnly && !m.HasAttachments {
			continue
		}
		if hasCutoff && m.ReceivedAt.Before(cutoff) {
			continue
		}
		if needle != "" && !matchesText(m, needle) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func rangeCutoff(r DateRange, now time.Time) (time.Time, bool) {
	switch r {
	case DateToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case DateWeek:
		return now.AddDate(0, 0, -7), true
	case DateMonth:
		return now.AddDate(0, -1, 0), true
	}
	return time.Time{}, false
}

func matchesText(m types.Message, needle string) bool {
	for _, hay := range []string{m.SenderName, m.SenderAddress, m.Subject, m.Preview} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}
