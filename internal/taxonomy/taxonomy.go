package taxonomy

import (
	"strings"

	"github.com/brandon/unibox/pkg/types"
)

// categoryOrder fixes the order in which synonym sets are tested; the
// first matching category wins.
var categoryOrder = []types.Category{
	types.CategoryInbox,
	types.CategorySent,
	types.CategoryDrafts,
	types.CategoryTrash,
	types.CategorySpam,
	types.CategoryArchive,
	types.CategoryStarred,
	types.CategoryImportant,
	types.CategoryOutbox,
}

// synonyms maps each canonical category to the uppercase folder names
// and ids it is known by across providers. Values are matched exactly,
// as a provider-namespace suffix ("[GMAIL]/SENT MAIL"), or as the
// segment after the last slash.
var synonyms = map[types.Category][]string{
	types.CategoryInbox:     {"INBOX"},
	types.CategorySent:      {"SENT", "SENTITEMS", "SENT ITEMS", "SENT MESSAGES", "SENT MAIL", "SENT-MAIL"},
	types.CategoryDrafts:    {"DRAFTS", "DRAFT"},
	types.CategoryTrash:     {"TRASH", "DELETED", "DELETEDITEMS", "DELETED ITEMS", "DELETED MESSAGES", "BIN"},
	types.CategorySpam:      {"SPAM", "JUNK", "JUNKEMAIL", "JUNK EMAIL", "JUNK E-MAIL", "BULK MAIL"},
	types.CategoryArchive:   {"ARCHIVE", "ALL MAIL", "ALLMAIL", "ALL_MAIL"},
	types.CategoryStarred:   {"STARRED", "FLAGGED"},
	types.CategoryImportant: {"IMPORTANT", "PRIORITY"},
	types.CategoryOutbox:    {"OUTBOX"},
}

// Classify maps a raw provider folder id/name pair onto a canonical
// category. Classification is a pure function of the two values: both
// are uppercased and tested against each category's synonym set in a
// fixed order. Folders matching no synonym classify as unknown; they
// stay visible in folder listings but are excluded from the canonical
// quick filters.
func Classify(rawID, rawName string) types.Category {
	id := strings.ToUpper(strings.TrimSpace(rawID))
	name := strings.ToUpper(strings.TrimSpace(rawName))

	for _, cat := range categoryOrder {
		for _, syn := range synonyms[cat] {
			if matches(id, syn) || matches(name, syn) {
				return cat
			}
		}
	}
	return types.CategoryUnknown
}

// matches tests one normalized value against one synonym: exact
// equality, or equality of the segment after the last slash, which
// also covers provider-prefixed variants such as "[GMAIL]/SENT MAIL".
func matches(value, syn string) bool {
	if value == "" {
		return false
	}
	if value == syn {
		return true
	}
	if idx := strings.LastIndex(value, "/"); idx >= 0 && value[idx+1:] == syn {
		return true
	}
	return false
}

// Canonical reports whether cat is one of the fixed taxonomy values,
// i.e. not unknown.
func Canonical(cat types.Category) bool {
	for _, c := range categoryOrder {
		if c == cat {
			return true
		}
	}
	return false
}

// QuickFilters returns the categories exposed as canonical quick
// filters, in display order.
func QuickFilters() []types.Category {
	out := make([]types.Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}
