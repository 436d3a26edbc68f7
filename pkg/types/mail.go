package types

import "time"

// ProviderKind identifies which backend a mailbox is hosted on.
type ProviderKind string

const (
	ProviderGmail ProviderKind = "gmail"
	ProviderGraph ProviderKind = "graph"
	ProviderIMAP  ProviderKind = "imap"
)

// Valid reports whether k is one of the known provider kinds.
func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderGmail, ProviderGraph, ProviderIMAP:
		return true
	}
	return false
}

// Mailbox represents a connected email account.
type Mailbox struct {
	ID          string       `json:"id"`
	Provider    ProviderKind `json:"provider"`
	Address     string       `json:"address"`
	DisplayName string       `json:"display_name"`
	Verified    bool         `json:"verified"`
	LastSyncAt  *time.Time   `json:"last_sync_at,omitempty"`
}

// Folder is a provider folder normalized onto the canonical taxonomy.
// Category is derived from the raw id/name and never authored directly.
type Folder struct {
	RawID       string   `json:"raw_id"`
	RawName     string   `json:"raw_name"`
	Category    Category `json:"category"`
	UnreadCount int      `json:"unread_count"`
	Children    []Folder `json:"children,omitempty"`
}

// Category is one of the fixed canonical folder categories.
type Category string

const (
	CategoryInbox     Category = "inbox"
	CategorySent      Category = "sent"
	CategoryDrafts    Category = "drafts"
	CategoryTrash     Category = "trash"
	CategorySpam      Category = "spam"
	CategoryArchive   Category = "archive"
	CategoryStarred   Category = "starred"
	CategoryImportant Category = "important"
	CategoryOutbox    Category = "outbox"
	CategoryUnknown   Category = "unknown"
)

// Message is the canonical message shape shared by all providers.
// Identity is the durable identifier resolved once by the identity
// package; it is empty when no durable id could be derived, in which
// case the message cannot be the target of a mutation.
type Message struct {
	Identity       string            `json:"identity"`
	DisplayKey     string            `json:"display_key"`
	FolderCategory Category          `json:"folder_category"`
	IsRead         bool              `json:"is_read"`
	IsStarred      bool              `json:"is_starred"`
	HasAttachments bool              `json:"has_attachments"`
	SenderName     string            `json:"sender_name"`
	SenderAddress  string            `json:"sender_address"`
	Subject        string            `json:"subject"`
	Preview        string            `json:"preview,omitempty"`
	ReceivedAt     time.Time         `json:"received_at"`
	ProviderRaw    map[string]string `json:"provider_raw,omitempty"`
}

// Attachment describes a message attachment reference.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// OutgoingMessage is the payload for send, reply, forward and drafts.
type OutgoingMessage struct {
	To       []string `json:"to"`
	Cc       []string `json:"cc,omitempty"`
	Bcc      []string `json:"bcc,omitempty"`
	Subject  string   `json:"subject"`
	BodyText string   `json:"body_text,omitempty"`
	BodyHTML string   `json:"body_html,omitempty"`
}

// MessagePage is one page of canonical messages plus the adapter's
// pagination signals for that page.
type MessagePage struct {
	Messages []Message `json:"messages"`
	// NextToken is the opaque forward cursor for cursor providers;
	// empty when the provider signalled no further data.
	NextToken string `json:"next_token,omitempty"`
	// TotalCount is the provider's total/estimate where available
	// (paged providers report it exactly, cursor providers as an
	// estimate or -1 when unknown).
	TotalCount int `json:"total_count"`
	// HasMore reports the provider's own "more data" signal.
	HasMore bool `json:"has_more"`
}
