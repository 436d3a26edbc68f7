package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brandon/unibox/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		rawID   string
		rawName string
		want    types.Category
	}{
		{"gmail system label", "INBOX", "INBOX", types.CategoryInbox},
		{"gmail sent label", "SENT", "SENT", types.CategorySent},
		{"outlook display name", "AAMkADdeadbeef=", "Sent Items", types.CategorySent},
		{"imap sent mail", "Sent Mail", "Sent Mail", types.CategorySent},
		{"namespaced sent", "[PROVIDER]/SENT", "[PROVIDER]/SENT", types.CategorySent},
		{"namespaced drafts", "[Gmail]/Drafts", "[Gmail]/Drafts", types.CategoryDrafts},
		{"lowercase trash", "trash", "trash", types.CategoryTrash},
		{"deleted items", "deleteditems", "Deleted Items", types.CategoryTrash},
		{"junk", "Junk", "Junk", types.CategorySpam},
		{"spam uppercase", "SPAM", "SPAM", types.CategorySpam},
		{"archive", "Archive", "Archive", types.CategoryArchive},
		{"starred", "STARRED", "STARRED", types.CategoryStarred},
		{"flagged", "Flagged", "Flagged", types.CategoryStarred},
		{"important", "IMPORTANT", "IMPORTANT", types.CategoryImportant},
		{"outbox", "Outbox", "Outbox", types.CategoryOutbox},
		{"user folder", "Label_42", "Receipts", types.CategoryUnknown},
		{"nested user folder", "Work/Receipts", "Work/Receipts", types.CategoryUnknown},
		{"empty", "", "", types.CategoryUnknown},
		{"substring is not a match", "PRESENT", "PRESENT", types.CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.rawID, tt.rawName))
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	// Same inputs always land on the same category regardless of how
	// often or in what order folders are classified.
	for i := 0; i < 50; i++ {
		assert.Equal(t, types.CategorySent, Classify("[PROVIDER]/SENT", "Sent Items"))
		assert.Equal(t, types.CategoryInbox, Classify("inbox", "Inbox"))
	}
}

func TestClassifyEitherField(t *testing.T) {
	// A match on either the raw id or the display name suffices.
	assert.Equal(t, types.CategorySent, Classify("SENT", "My Custom Folder"))
	assert.Equal(t, types.CategoryTrash, Classify("AAMkAD001=", "Deleted Items"))
}

func TestCanonical(t *testing.T) {
	assert.True(t, Canonical(types.CategoryInbox))
	assert.True(t, Canonical(types.CategoryOutbox))
	assert.False(t, Canonical(types.CategoryUnknown))
	assert.False(t, Canonical(types.Category("lobster")))
}

func TestQuickFilters(t *testing.T) {
	filters := QuickFilters()
	assert.NotEmpty(t, filters)
	for _, cat := range filters {
		assert.NotEqual(t, types.CategoryUnknown, cat, "unknown folders are never quick filters")
		assert.True(t, Canonical(cat))
	}
}
