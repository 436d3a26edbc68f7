package provider

import (
	"context"

	"github.com/brandon/unibox/pkg/types"
)

// PaginationKind distinguishes the two pagination primitives adapters
// are built on.
type PaginationKind string

const (
	// PaginationCursor is an opaque forward token plus an optional
	// total estimate; no random access to arbitrary pages.
	PaginationCursor PaginationKind = "cursor"
	// PaginationPaged is numeric page/pageSize with an exact total;
	// "has next" is computed as page*pageSize < total.
	PaginationPaged PaginationKind = "paged"
)

// FolderRef names a folder for adapter calls. Adapters route special
// folders (sent, trash, spam, starred, ...) by the resolved Category,
// never by inspecting the raw id.
type FolderRef struct {
	RawID    string
	RawName  string
	Category types.Category
}

// PageRequest carries the pagination state for one list or search
// call. Cursor adapters consume Token; the paged adapter consumes
// Page/PageSize.
type PageRequest struct {
	Token    string
	Page     int
	PageSize int
}

// BatchOp is an operation applied to a set of messages at once.
type BatchOp string

const (
	BatchMarkRead   BatchOp = "mark_read"
	BatchMarkUnread BatchOp = "mark_unread"
	BatchStar       BatchOp = "star"
	BatchUnstar     BatchOp = "unstar"
	BatchDelete     BatchOp = "delete"
)

// Adapter is the single contract every provider backend implements.
// All blocking operations take a context; failures surface as the
// typed errors in this package.
type Adapter interface {
	Kind() types.ProviderKind
	Pagination() PaginationKind

	ListFolders(ctx context.Context) ([]types.Folder, error)
	ListByFolder(ctx context.Context, folder FolderRef, page PageRequest) (*types.MessagePage, error)
	GetMessage(ctx context.Context, id string) (*types.Message, error)
	Search(ctx context.Context, query string, page PageRequest) (*types.MessagePage, error)

	ListAttachments(ctx context.Context, id string) ([]types.Attachment, error)
	DownloadAttachment(ctx context.Context, id, attachmentID string) ([]byte, error)

	Send(ctx context.Context, msg *types.OutgoingMessage) error
	Reply(ctx context.Context, id string, msg *types.OutgoingMessage) error
	Forward(ctx context.Context, id string, msg *types.OutgoingMessage) error

	CreateDraft(ctx context.Context, msg *types.OutgoingMessage) (string, error)
	UpdateDraft(ctx context.Context, id string, msg *types.OutgoingMessage) error
	DeleteDraft(ctx context.Context, id string) error

	SetRead(ctx context.Context, id string, read bool) error
	SetStarred(ctx context.Context, id string, starred bool) error
	Delete(ctx context.Context, id string) error
	Move(ctx context.Context, id string, target FolderRef) error
	Copy(ctx context.Context, id string, target FolderRef) error
	BatchOperate(ctx context.Context, ids []string, op BatchOp) error

	Sync(ctx context.Context, folder FolderRef) error
	Disconnect(ctx context.Context) error
}

// TokenRefresher is implemented by adapters whose provider supports
// token refresh. An AuthExpiredError from such an adapter is retried
// once after RefreshToken succeeds. Credential-based adapters do not
// implement it.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) error
}
