package gmailapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/brandon/unibox/internal/provider"
	"github.com/brandon/unibox/internal/taxonomy"
	"github.com/brandon/unibox/pkg/types"
)

const user = "me"

// Config holds the OAuth material for one Gmail mailbox.
type Config struct {
	MailboxID    string
	Address      string
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
	// Endpoint overrides the API base URL, used by tests.
	Endpoint string
}

// Adapter implements provider.Adapter over the Gmail REST API. It is
// a forward-cursor adapter: listings return an opaque nextPageToken
// plus a result-size estimate, and there is no random page access.
type Adapter struct {
	srv         *gmail.Service
	tokenSource *provider.RenewableTokenSource
	mailboxID   string
	address     string
	logger      *logrus.Logger
}

// NewAdapter builds the Gmail service from a stored refresh token.
// The interactive consent dance happens elsewhere; this adapter only
// consumes the resulting token.
func NewAdapter(ctx context.Context, cfg Config, logger *logrus.Logger) (*Adapter, error) {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
	}
	ts := provider.NewRenewableTokenSource(func() oauth2.TokenSource {
		return oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	})

	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	return &Adapter{
		srv:         srv,
		tokenSource: ts,
		mailboxID:   cfg.MailboxID,
		address:     cfg.Address,
		logger:      logger,
	}, nil
}

func (a *Adapter) Kind() types.ProviderKind            { return types.ProviderGmail }
func (a *Adapter) Pagination() provider.PaginationKind { return provider.PaginationCursor }

// RefreshToken discards the cached access token and fetches a fresh
// one, so a server-side rejection of a locally valid token is not
// retried with the same credential.
func (a *Adapter) RefreshToken(ctx context.Context) error {
	a.tokenSource.Renew()
	if _, err := a.tokenSource.Token(); err != nil {
		return &provider.AuthExpiredError{Mailbox: a.mailboxID, Message: err.Error()}
	}
	return nil
}

// ListFolders lists labels and classifies each into the canonical
// taxonomy. Unread counts come from per-label detail reads; a failed
// detail read degrades to zero rather than failing the listing.
func (a *Adapter) ListFolders(ctx context.Context) ([]types.Folder, error) {
	resp, err := a.srv.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, a.mapError("list labels", err)
	}

	folders := make([]types.Folder, 0, len(resp.Labels))
	for _, label := range resp.Labels {
		folder := types.Folder{
			RawID:    label.Id,
			RawName:  label.Name,
			Category: taxonomy.Classify(label.Id, label.Name),
		}
		detail, derr := a.srv.Users.Labels.Get(user, label.Id).Context(ctx).Do()
		if derr != nil {
			a.logger.WithError(derr).WithField("label", label.Id).Debug("Failed to read label detail")
		} else {
			folder.UnreadCount = int(detail.MessagesUnread)
		}
		folders = append(folders, folder)
	}
	return folders, nil
}

// labelFor routes a folder reference to the label id backing its
// listing. Special folders route by resolved category; unmapped
// folders fall back to their raw label id.
func labelFor(folder provider.FolderRef) string {
	switch folder.Category {
	case types.CategoryInbox:
		return "INBOX"
	case types.CategorySent:
		return "SENT"
	case types.CategoryDrafts:
		return "DRAFT"
	case types.CategoryTrash:
		return "TRASH"
	case types.CategorySpam:
		return "SPAM"
	case types.CategoryStarred:
		return "STARRED"
	case types.CategoryImportant:
		return "IMPORTANT"
	}
	return folder.RawID
}

// ListByFolder fetches one page of a label-scoped listing. Drafts are
// backed by the dedicated drafts endpoint rather than the generic
// message listing.
func (a *Adapter) ListByFolder(ctx context.Context, folder provider.FolderRef, page provider.PageRequest) (*types.MessagePage, error) {
	if folder.Category == types.CategoryDrafts {
		return a.listDrafts(ctx, page)
	}

	call := a.srv.Users.Messages.List(user).
		LabelIds(labelFor(folder)).
		MaxResults(int64(pageSize(page))).
		Context(ctx)
	if page.Token != "" {
		call = call.PageToken(page.Token)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, a.mapError("list messages", err)
	}
	return a.buildPage(ctx, resp.Messages, resp.NextPageToken, int(resp.ResultSizeEstimate))
}

func (a *Adapter) listDrafts(ctx context.Context, page provider.PageRequest) (*types.MessagePage, error) {
	call := a.srv.Users.Drafts.List(user).
		MaxResults(int64(pageSize(page))).
		Context(ctx)
	if page.Token != "" {
		call = call.PageToken(page.Token)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, a.mapError("list drafts", err)
	}

	refs := make([]*gmail.Message, 0, len(resp.Drafts))
	for _, d := range resp.Drafts {
		if d.Message != nil {
			refs = append(refs, d.Message)
		}
	}
	return a.buildPage(ctx, refs, resp.NextPageToken, int(resp.ResultSizeEstimate))
}

// buildPage resolves each listed message reference into canonical
// shape. The list endpoint only returns ids; metadata comes from
// per-message detail reads.
func (a *Adapter) buildPage(ctx context.Context, refs []*gmail.Message, nextToken string, estimate int) (*types.MessagePage, error) {
	messages := make([]types.Message, 0, len(refs))
	for _, ref := range refs {
		detail, err := a.srv.Users.Messages.Get(user, ref.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "Date", "Message-ID").
			Context(ctx).Do()
		if err != nil {
			a.logger.WithError(err).WithField("message", ref.Id).Warn("Failed to read message detail")
			continue
		}
		messages = append(messages, toMessage(detail))
	}

	return &types.MessagePage{
		Messages:   messages,
		NextToken:  nextToken,
		TotalCount: estimate,
		HasMore:    nextToken != "",
	}, nil
}

// GetMessage fetches one message in full.
func (a *Adapter) GetMessage(ctx context.Context, id string) (*types.Message, error) {
	detail, err := a.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, a.mapError("get message", err)
	}
	msg := toMessage(detail)
	msg.Preview = detail.Snippet
	return &msg, nil
}

// Search runs a server-side query through the generic listing's q
// parameter.
func (a *Adapter) Search(ctx context.Context, query string, page provider.PageRequest) (*types.MessagePage, error) {
	call := a.srv.Users.Messages.List(user).
		Q(query).
		MaxResults(int64(pageSize(page))).
		Context(ctx)
	if page.Token != "" {
		call = call.PageToken(page.Token)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, a.mapError("search messages", err)
	}
	return a.buildPage(ctx, resp.Messages, resp.NextPageToken, int(resp.ResultSizeEstimate))
}

// ListAttachments walks the payload tree for parts carrying an
// attachment id.
func (a *Adapter) ListAttachments(ctx context.Context, id string) ([]types.Attachment, error) {
	detail, err := a.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, a.mapError("get message", err)
	}

	var out []types.Attachment
	walkParts(detail.Payload, func(part *gmail.MessagePart) {
		if part.Body != nil && part.Body.AttachmentId != "" {
			out = append(out, types.Attachment{
				ID:       part.Body.AttachmentId,
				Filename: part.Filename,
				MimeType: part.MimeType,
				Size:     part.Body.Size,
			})
		}
	})
	return out, nil
}

// DownloadAttachment fetches and decodes one attachment body.
func (a *Adapter) DownloadAttachment(ctx context.Context, id, attachmentID string) ([]byte, error) {
	body, err := a.srv.Users.Messages.Attachments.Get(user, id, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, a.mapError("get attachment", err)
	}
	data, err := base64.URLEncoding.DecodeString(body.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return data, nil
}

// Send delivers a new message.
func (a *Adapter) Send(ctx context.Context, msg *types.OutgoingMessage) error {
	_, err := a.srv.Users.Messages.Send(user, &gmail.Message{
		Raw: encodeRaw(a.address, msg, ""),
	}).Context(ctx).Do()
	if err != nil {
		return a.mapError("send message", err)
	}
	return nil
}

// Reply sends a reply on the original thread.
func (a *Adapter) Reply(ctx context.Context, id string, msg *types.OutgoingMessage) error {
	original, err := a.srv.Users.Messages.Get(user, id).
		Format("metadata").
		MetadataHeaders("Message-ID").
		Context(ctx).Do()
	if err != nil {
		return a.mapError("get message", err)
	}

	_, err = a.srv.Users.Messages.Send(user, &gmail.Message{
		Raw:      encodeRaw(a.address, msg, headerValue(original, "Message-ID")),
		ThreadId: original.ThreadId,
	}).Context(ctx).Do()
	if err != nil {
		return a.mapError("send reply", err)
	}
	return nil
}

// Forward delivers the prepared forward payload.
func (a *Adapter) Forward(ctx context.Context, id string, msg *types.OutgoingMessage) error {
	return a.Send(ctx, msg)
}

// CreateDraft stores a new draft and returns its id.
func (a *Adapter) CreateDraft(ctx context.Context, msg *types.OutgoingMessage) (string, error) {
	draft, err := a.srv.Users.Drafts.Create(user, &gmail.Draft{
		Message: &gmail.Message{Raw: encodeRaw(a.address, msg, "")},
	}).Context(ctx).Do()
	if err != nil {
		return "", a.mapError("create draft", err)
	}
	return draft.Id, nil
}

// UpdateDraft replaces a draft's content in place.
func (a *Adapter) UpdateDraft(ctx context.Context, id string, msg *types.OutgoingMessage) error {
	_, err := a.srv.Users.Drafts.Update(user, id, &gmail.Draft{
		Message: &gmail.Message{Raw: encodeRaw(a.address, msg, "")},
	}).Context(ctx).Do()
	if err != nil {
		return a.mapError("update draft", err)
	}
	return nil
}

// DeleteDraft discards a draft.
func (a *Adapter) DeleteDraft(ctx context.Context, id string) error {
	if err := a.srv.Users.Drafts.Delete(user, id).Context(ctx).Do(); err != nil {
		return a.mapError("delete draft", err)
	}
	return nil
}

// SetRead toggles the UNREAD label.
func (a *Adapter) SetRead(ctx context.Context, id string, read bool) error {
	req := &gmail.ModifyMessageRequest{}
	if read {
		req.RemoveLabelIds = []string{"UNREAD"}
	} else {
		req.AddLabelIds = []string{"UNREAD"}
	}
	return a.modify(ctx, id, req)
}

// SetStarred toggles the STARRED label.
func (a *Adapter) SetStarred(ctx context.Context, id string, starred bool) error {
	req := &gmail.ModifyMessageRequest{}
	if starred {
		req.AddLabelIds = []string{"STARRED"}
	} else {
		req.RemoveLabelIds = []string{"STARRED"}
	}
	return a.modify(ctx, id, req)
}

func (a *Adapter) modify(ctx context.Context, id string, req *gmail.ModifyMessageRequest) error {
	if _, err := a.srv.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return a.mapError("modify message", err)
	}
	return nil
}

// Delete moves a message to trash.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	if _, err := a.srv.Users.Messages.Trash(user, id).Context(ctx).Do(); err != nil {
		return a.mapError("trash message", err)
	}
	return nil
}

// Move swaps label membership: the message's current folder labels
// are removed and the target label added. Archive has no label of its
// own, so moving there is remove-only.
func (a *Adapter) Move(ctx context.Context, id string, target provider.FolderRef) error {
	msg, err := a.srv.Users.Messages.Get(user, id).Format("minimal").Context(ctx).Do()
	if err != nil {
		return a.mapError("get message", err)
	}

	targetLabel := ""
	if target.Category != types.CategoryArchive {
		targetLabel = labelFor(target)
	}

	req := &gmail.ModifyMessageRequest{}
	for _, l := range msg.LabelIds {
		if l != targetLabel && isFolderLabel(l) {
			req.RemoveLabelIds = append(req.RemoveLabelIds, l)
		}
	}
	if targetLabel != "" && !hasLabel(msg.LabelIds, targetLabel) {
		req.AddLabelIds = []string{targetLabel}
	}
	if len(req.AddLabelIds) == 0 && len(req.RemoveLabelIds) == 0 {
		return nil
	}
	return a.modify(ctx, id, req)
}

// isFolderLabel reports whether a label scopes the message to a
// folder for move purposes. Flag labels (UNREAD, STARRED, IMPORTANT)
// stay put, and SENT/DRAFT cannot be detached; user labels carry the
// Label_ id prefix.
func isFolderLabel(l string) bool {
	switch l {
	case "INBOX", "TRASH", "SPAM":
		return true
	}
	return strings.HasPrefix(l, "Label_")
}

// Copy adds the target label; label membership is Gmail's copy.
func (a *Adapter) Copy(ctx context.Context, id string, target provider.FolderRef) error {
	return a.modify(ctx, id, &gmail.ModifyMessageRequest{
		AddLabelIds: []string{labelFor(target)},
	})
}

// BatchOperate applies one operation to many messages in a single
// call.
func (a *Adapter) BatchOperate(ctx context.Context, ids []string, op provider.BatchOp) error {
	if len(ids) == 0 {
		return nil
	}

	if op == provider.BatchDelete {
		err := a.srv.Users.Messages.BatchDelete(user, &gmail.BatchDeleteMessagesRequest{Ids: ids}).Context(ctx).Do()
		if err != nil {
			return a.mapError("batch delete", err)
		}
		return nil
	}

	req := &gmail.BatchModifyMessagesRequest{Ids: ids}
	switch op {
	case provider.BatchMarkRead:
		req.RemoveLabelIds = []string{"UNREAD"}
	case provider.BatchMarkUnread:
		req.AddLabelIds = []string{"UNREAD"}
	case provider.BatchStar:
		req.AddLabelIds = []string{"STARRED"}
	case provider.BatchUnstar:
		req.RemoveLabelIds = []string{"STARRED"}
	default:
		return fmt.Errorf("unknown batch operation: %s", op)
	}

	if err := a.srv.Users.Messages.BatchModify(user, req).Context(ctx).Do(); err != nil {
		return a.mapError("batch modify", err)
	}
	return nil
}

// Sync refreshes the counts of the folder's backing label.
func (a *Adapter) Sync(ctx context.Context, folder provider.FolderRef) error {
	if _, err := a.srv.Users.Labels.Get(user, labelFor(folder)).Context(ctx).Do(); err != nil {
		return a.mapError("sync label", err)
	}
	return nil
}

// Disconnect drops the adapter's session state. Token revocation is
// handled by the registration flow, not here.
func (a *Adapter) Disconnect(ctx context.Context) error {
	return nil
}

// mapError translates Gmail API failures onto the typed taxonomy.
func (a *Adapter) mapError(op string, err error) error {
	var gerr *googleapi.Error
	if ok := asGoogleAPIError(err, &gerr); ok {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return &provider.AuthExpiredError{Mailbox: a.mailboxID, Message: gerr.Message}
		case http.StatusNotFound:
			return &provider.NotFoundError{Kind: "resource", Ref: op}
		}
		if gerr.Code >= 500 {
			return &provider.TransportError{Op: op, Cause: err}
		}
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return &provider.TransportError{Op: op, Cause: err}
}

func pageSize(page provider.PageRequest) int {
	if page.PageSize < 1 {
		return 25
	}
	return page.PageSize
}
