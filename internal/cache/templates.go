package cache

import "github.com/brandon/unibox/pkg/types"

// Template returns the built-in folder skeleton for a provider kind.
// It is the last resort of the read precedence chain, letting a brand
// new mailbox render a plausible folder tree before any network round
// trip completes. All unread counts are zero.
func Template(kind types.ProviderKind) []types.Folder {
	switch kind {
	case types.ProviderGmail:
		return []types.Folder{
			{RawID: "INBOX", RawName: "Inbox", Category: types.CategoryInbox},
			{RawID: "STARRED", RawName: "Starred", Category: types.CategoryStarred},
			{RawID: "IMPORTANT", RawName: "Important", Category: types.CategoryImportant},
			{RawID: "SENT", RawName: "Sent", Category: types.CategorySent},
			{RawID: "DRAFT", RawName: "Drafts", Category: types.CategoryDrafts},
			{RawID: "SPAM", RawName: "Spam", Category: types.CategorySpam},
			{RawID: "TRASH", RawName: "Trash", Category: types.CategoryTrash},
		}
	case types.ProviderGraph:
		return []types.Folder{
			{RawID: "inbox", RawName: "Inbox", Category: types.CategoryInbox},
			{RawID: "drafts", RawName: "Drafts", Category: types.CategoryDrafts},
			{RawID: "sentitems", RawName: "Sent Items", Category: types.CategorySent},
			{RawID: "deleteditems", RawName: "Deleted Items", Category: types.CategoryTrash},
			{RawID: "junkemail", RawName: "Junk Email", Category: types.CategorySpam},
			{RawID: "archive", RawName: "Archive", Category: types.CategoryArchive},
			{RawID: "outbox", RawName: "Outbox", Category: types.CategoryOutbox},
		}
	case types.ProviderIMAP:
		return []types.Folder{
			{RawID: "INBOX", RawName: "INBOX", Category: types.CategoryInbox},
			{RawID: "Sent", RawName: "Sent", Category: types.CategorySent},
			{RawID: "Drafts", RawName: "Drafts", Category: types.CategoryDrafts},
			{RawID: "Trash", RawName: "Trash", Category: types.CategoryTrash},
			{RawID: "Junk", RawName: "Junk", Category: types.CategorySpam},
			{RawID: "Archive", RawName: "Archive", Category: types.CategoryArchive},
		}
	}
	return nil
}
