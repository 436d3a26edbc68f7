package graphapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/brandon/unibox/internal/identity"
	"github.com/brandon/unibox/internal/provider"
	"github.com/brandon/unibox/internal/taxonomy"
	"github.com/brandon/unibox/pkg/types"
)

// Adapter implements provider.Adapter over a Graph-style enterprise
// mail API. Pagination is a forward cursor with lookahead: each page
// carries the full URL of the next one plus an optional exact count.
type Adapter struct {
	client *client
	logger *logrus.Logger
}

// NewAdapter creates a Graph adapter for one mailbox.
func NewAdapter(ctx context.Context, cfg Config, logger *logrus.Logger) *Adapter {
	return &Adapter{
		client: newClient(ctx, cfg),
		logger: logger,
	}
}

func (a *Adapter) Kind() types.ProviderKind            { return types.ProviderGraph }
func (a *Adapter) Pagination() provider.PaginationKind { return provider.PaginationCursor }

// RefreshToken discards the cached access token and fetches a fresh
// one, so a server-side rejection of a locally valid token is not
// retried with the same credential.
func (a *Adapter) RefreshToken(ctx context.Context) error {
	a.client.tokenSource.Renew()
	if _, err := a.client.tokenSource.Token(); err != nil {
		return &provider.AuthExpiredError{Mailbox: a.client.mailboxID, Message: err.Error()}
	}
	return nil
}

// wellKnown maps canonical categories onto the provider's well-known
// folder endpoints. Special folders route through these, never
// through the raw folder id.
func wellKnown(cat types.Category) (string, bool) {
	switch cat {
	case types.CategoryInbox:
		return "inbox", true
	case types.CategorySent:
		return "sentitems", true
	case types.CategoryDrafts:
		return "drafts", true
	case types.CategoryTrash:
		return "deleteditems", true
	case types.CategorySpam:
		return "junkemail", true
	case types.CategoryArchive:
		return "archive", true
	case types.CategoryOutbox:
		return "outbox", true
	}
	return "", false
}

func (a *Adapter) folderPath(folder provider.FolderRef) string {
	if name, ok := wellKnown(folder.Category); ok {
		return name
	}
	return url.PathEscape(folder.RawID)
}

// ListFolders lists the folder tree with unread counts and classifies
// every node. Mailboxes with more top-level folders than one page
// holds are drained through the provider's next links.
func (a *Adapter) ListFolders(ctx context.Context) ([]types.Folder, error) {
	var out []types.Folder
	u := fmt.Sprintf("%s/me/mailFolders?$top=100&$expand=childFolders", a.client.baseURL)
	for u != "" {
		var list folderList
		if err := a.client.get(ctx, u, &list); err != nil {
			return nil, err
		}
		out = append(out, toFolders(list.Value)...)
		u = list.NextLink
	}
	return out, nil
}

func toFolders(wire []wireFolder) []types.Folder {
	if len(wire) == 0 {
		return nil
	}
	out := make([]types.Folder, 0, len(wire))
	for _, f := range wire {
		out = append(out, types.Folder{
			RawID:       f.ID,
			RawName:     f.DisplayName,
			Category:    taxonomy.Classify(f.ID, f.DisplayName),
			UnreadCount: f.UnreadCount,
			Children:    toFolders(f.ChildFolders),
		})
	}
	return out
}

// ListByFolder fetches one page of a folder listing. The page token
// is the provider's own next-page URL; when present it supersedes the
// constructed first-page URL.
func (a *Adapter) ListByFolder(ctx context.Context, folder provider.FolderRef, page provider.PageRequest) (*types.MessagePage, error) {
	u := page.Token
	if u == "" {
		q := url.Values{}
		q.Set("$top", strconv.Itoa(pageSize(page)))
		q.Set("$count", "true")
		q.Set("$orderby", "receivedDateTime desc")
		u = fmt.Sprintf("%s/me/mailFolders/%s/messages?%s",
			a.client.baseURL, a.folderPath(folder), q.Encode())
	}

	var list messageList
	if err := a.client.get(ctx, u, &list); err != nil {
		return nil, err
	}
	return a.toPage(list), nil
}

// GetMessage fetches one message.
func (a *Adapter) GetMessage(ctx context.Context, id string) (*types.Message, error) {
	var wire wireMessage
	u := fmt.Sprintf("%s/me/messages/%s", a.client.baseURL, url.PathEscape(id))
	if err := a.client.get(ctx, u, &wire); err != nil {
		return nil, err
	}
	msg := toMessage(wire)
	return &msg, nil
}

// Search runs the provider's server-side $search.
func (a *Adapter) Search(ctx context.Context, query string, page provider.PageRequest) (*types.MessagePage, error) {
	u := page.Token
	if u == "" {
		u = fmt.Sprintf("%s/me/messages?$search=%s&$top=%d",
			a.client.baseURL, url.QueryEscape(fmt.Sprintf("%q", query)), pageSize(page))
	}

	var list messageList
	if err := a.client.get(ctx, u, &list); err != nil {
		return nil, err
	}
	return a.toPage(list), nil
}

func (a *Adapter) toPage(list messageList) *types.MessagePage {
	messages := make([]types.Message, 0, len(list.Value))
	for _, wire := range list.Value {
		messages = append(messages, toMessage(wire))
	}

	total := -1
	if list.Count != nil {
		total = *list.Count
	}
	return &types.MessagePage{
		Messages:   messages,
		NextToken:  list.NextLink,
		TotalCount: total,
		HasMore:    list.NextLink != "",
	}
}

// ListAttachments lists attachment metadata.
func (a *Adapter) ListAttachments(ctx context.Context, id string) ([]types.Attachment, error) {
	var list attachmentList
	u := fmt.Sprintf("%s/me/messages/%s/attachments", a.client.baseURL, url.PathEscape(id))
	if err := a.client.get(ctx, u, &list); err != nil {
		return nil, err
	}

	out := make([]types.Attachment, 0, len(list.Value))
	for _, att := range list.Value {
		out = append(out, types.Attachment{
			ID:       att.ID,
			Filename: att.Name,
			MimeType: att.ContentType,
			Size:     att.Size,
		})
	}
	return out, nil
}

// DownloadAttachment streams one attachment's raw content.
func (a *Adapter) DownloadAttachment(ctx context.Context, id, attachmentID string) ([]byte, error) {
	u := fmt.Sprintf("%s/me/messages/%s/attachments/%s/$value",
		a.client.baseURL, url.PathEscape(id), url.PathEscape(attachmentID))
	return a.client.getRaw(ctx, u)
}

// Send delivers a new message via the sendMail endpoint.
func (a *Adapter) Send(ctx context.Context, msg *types.OutgoingMessage) error {
	u := a.client.baseURL + "/me/sendMail"
	return a.client.do(ctx, http.MethodPost, u, outgoingBody(msg), nil)
}

// Reply posts to the reply endpoint, which threads server-side.
func (a *Adapter) Reply(ctx context.Context, id string, msg *types.OutgoingMessage) error {
	u := fmt.Sprintf("%s/me/messages/%s/reply", a.client.baseURL, url.PathEscape(id))
	return a.client.do(ctx, http.MethodPost, u, map[string]interface{}{
		"comment": msg.BodyText,
	}, nil)
}

// Forward posts to the forward endpoint.
func (a *Adapter) Forward(ctx context.Context, id string, msg *types.OutgoingMessage) error {
	u := fmt.Sprintf("%s/me/messages/%s/forward", a.client.baseURL, url.PathEscape(id))
	return a.client.do(ctx, http.MethodPost, u, map[string]interface{}{
		"comment":      msg.BodyText,
		"toRecipients": recipients(msg.To),
	}, nil)
}

// CreateDraft creates an unsent message, which the provider stores in
// drafts.
func (a *Adapter) CreateDraft(ctx context.Context, msg *types.OutgoingMessage) (string, error) {
	var created wireMessage
	u := a.client.baseURL + "/me/messages"
	if err := a.client.do(ctx, http.MethodPost, u, messageBody(msg), &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// UpdateDraft patches a draft in place.
func (a *Adapter) UpdateDraft(ctx context.Context, id string, msg *types.OutgoingMessage) error {
	u := fmt.Sprintf("%s/me/messages/%s", a.client.baseURL, url.PathEscape(id))
	return a.client.do(ctx, http.MethodPatch, u, messageBody(msg), nil)
}

// DeleteDraft removes a draft.
func (a *Adapter) DeleteDraft(ctx context.Context, id string) error {
	u := fmt.Sprintf("%s/me/messages/%s", a.client.baseURL, url.PathEscape(id))
	return a.client.do(ctx, http.MethodDelete, u, nil, nil)
}

// SetRead patches the isRead flag.
func (a *Adapter) SetRead(ctx context.Context, id string, read bool) error {
	u := fmt.Sprintf("%s/me/messages/%s", a.client.baseURL, url.PathEscape(id))
	return a.client.do(ctx, http.MethodPatch, u, map[string]interface{}{"isRead": read}, nil)
}

// SetStarred patches the follow-up flag, the provider's spelling of
// starred.
func (a *Adapter) SetStarred(ctx context.Context, id string, starred bool) error {
	status := "notFlagged"
	if starred {
		status = "flagged"
	}
	u := fmt.Sprintf("%s/me/messages/%s", a.client.baseURL, url.PathEscape(id))
	return a.client.do(ctx, http.MethodPatch, u, map[string]interface{}{
		"flag": map[string]string{"flagStatus": status},
	}, nil)
}

// Delete moves the message to deleted items.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	return a.Move(ctx, id, provider.FolderRef{Category: types.CategoryTrash})
}

// Move posts to the move endpoint with the resolved destination.
func (a *Adapter) Move(ctx context.Context, id string, target provider.FolderRef) error {
	u := fmt.Sprintf("%s/me/messages/%s/move", a.client.baseURL, url.PathEscape(id))
	return a.client.do(ctx, http.MethodPost, u, map[string]string{
		"destinationId": a.folderPath(target),
	}, nil)
}

// Copy posts to the copy endpoint.
func (a *Adapter) Copy(ctx context.Context, id string, target provider.FolderRef) error {
	u := fmt.Sprintf("%s/me/messages/%s/copy", a.client.baseURL, url.PathEscape(id))
	return a.client.do(ctx, http.MethodPost, u, map[string]string{
		"destinationId": a.folderPath(target),
	}, nil)
}

// BatchOperate applies the operation message by message; partial
// failure aborts at the first error.
func (a *Adapter) BatchOperate(ctx context.Context, ids []string, op provider.BatchOp) error {
	for _, id := range ids {
		var err error
		switch op {
		case provider.BatchMarkRead:
			err = a.SetRead(ctx, id, true)
		case provider.BatchMarkUnread:
			err = a.SetRead(ctx, id, false)
		case provider.BatchStar:
			err = a.SetStarred(ctx, id, true)
		case provider.BatchUnstar:
			err = a.SetStarred(ctx, id, false)
		case provider.BatchDelete:
			err = a.Delete(ctx, id)
		default:
			return fmt.Errorf("unknown batch operation: %s", op)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Sync refreshes the folder's counts.
func (a *Adapter) Sync(ctx context.Context, folder provider.FolderRef) error {
	var wire wireFolder
	u := fmt.Sprintf("%s/me/mailFolders/%s", a.client.baseURL, a.folderPath(folder))
	return a.client.get(ctx, u, &wire)
}

// Disconnect drops the adapter's session state.
func (a *Adapter) Disconnect(ctx context.Context) error {
	return nil
}

// toMessage maps a wire message onto the canonical shape.
func toMessage(wire wireMessage) types.Message {
	raw := identity.Raw{
		ID:                wire.ID,
		InternetMessageID: wire.InternetMessageID,
	}

	out := types.Message{
		Identity:       identity.Resolve(raw, types.ProviderGraph),
		DisplayKey:     identity.DisplayKey(raw, types.ProviderGraph),
		FolderCategory: types.CategoryUnknown,
		IsRead:         wire.IsRead,
		HasAttachments: wire.HasAttachments,
		Subject:        wire.Subject,
		Preview:        wire.BodyPreview,
		ReceivedAt:     wire.ReceivedDateTime,
		ProviderRaw: map[string]string{
			"id":                  wire.ID,
			"internet_message_id": wire.InternetMessageID,
		},
	}
	if wire.From != nil {
		out.SenderName = wire.From.EmailAddress.Name
		out.SenderAddress = wire.From.EmailAddress.Address
	}
	if wire.Flag != nil {
		out.IsStarred = wire.Flag.FlagStatus == "flagged"
	}
	return out
}

func recipients(addrs []string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, map[string]interface{}{
			"emailAddress": map[string]string{"address": addr},
		})
	}
	return out
}

func messageBody(msg *types.OutgoingMessage) map[string]interface{} {
	contentType := "text"
	content := msg.BodyText
	if msg.BodyHTML != "" {
		contentType = "html"
		content = msg.BodyHTML
	}
	return map[string]interface{}{
		"subject":      msg.Subject,
		"toRecipients": recipients(msg.To),
		"ccRecipients": recipients(msg.Cc),
		"body": map[string]string{
			"contentType": contentType,
			"content":     content,
		},
	}
}

func outgoingBody(msg *types.OutgoingMessage) map[string]interface{} {
	return map[string]interface{}{
		"message":         messageBody(msg),
		"saveToSentItems": true,
	}
}

func pageSize(page provider.PageRequest) int {
	if page.PageSize < 1 {
		return 25
	}
	return page.PageSize
}
