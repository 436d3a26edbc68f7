package imapmail

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/brandon/unibox/internal/identity"
	"github.com/brandon/unibox/internal/provider"
	"github.com/brandon/unibox/internal/taxonomy"
	"github.com/brandon/unibox/pkg/types"
)

// Adapter implements provider.Adapter over generic IMAP/SMTP. It is
// the one paged adapter: the backend supplies no cursor, so "has next
// page" is computed client-side as page*pageSize < totalCount.
type Adapter struct {
	client *Client
	sender *Sender
	logger *logrus.Logger

	// folderNames maps canonical categories to raw folder names,
	// learned from the last folder listing. Special-folder routing
	// goes through this table, never through raw-id inspection.
	folderNames map[types.Category]string
}

// NewAdapter creates an IMAP/SMTP adapter for one mailbox.
func NewAdapter(cfg Config, logger *logrus.Logger) *Adapter {
	return &Adapter{
		client:      NewClient(cfg, logger),
		sender:      NewSender(cfg, logger),
		logger:      logger,
		folderNames: make(map[types.Category]string),
	}
}

func (a *Adapter) Kind() types.ProviderKind            { return types.ProviderIMAP }
func (a *Adapter) Pagination() provider.PaginationKind { return provider.PaginationPaged }

// ListFolders lists all folders, classifies them, and refreshes the
// category routing table.
func (a *Adapter) ListFolders(ctx context.Context) ([]types.Folder, error) {
	infos, err := a.client.ListMailboxes()
	if err != nil {
		return nil, err
	}

	routing := make(map[types.Category]string)
	folders := make([]types.Folder, 0, len(infos))
	for _, info := range infos {
		cat := taxonomy.Classify(info.Name, info.Name)
		if _, seen := routing[cat]; !seen && taxonomy.Canonical(cat) {
			routing[cat] = info.Name
		}
		folders = append(folders, types.Folder{
			RawID:       info.Name,
			RawName:     info.Name,
			Category:    cat,
			UnreadCount: info.Unseen,
		})
	}
	a.folderNames = routing
	return folders, nil
}

// folderName resolves a FolderRef to the raw IMAP folder name, using
// the learned routing table when the ref only carries a category.
func (a *Adapter) folderName(ref provider.FolderRef) string {
	if ref.RawName != "" {
		return ref.RawName
	}
	if ref.RawID != "" {
		return ref.RawID
	}
	if name, ok := a.folderNames[ref.Category]; ok {
		return name
	}
	if cands := Template(ref.Category); len(cands) > 0 {
		return cands[0]
	}
	return "INBOX"
}

// Template returns the default folder name candidates for a category
// when the server has not been listed yet.
func Template(cat types.Category) []string {
	switch cat {
	case types.CategorySent:
		return []string{"Sent"}
	case types.CategoryDrafts:
		return []string{"Drafts"}
	case types.CategoryTrash:
		return []string{"Trash"}
	case types.CategorySpam:
		return []string{"Junk"}
	case types.CategoryArchive:
		return []string{"Archive"}
	}
	return []string{"INBOX"}
}

// ListByFolder fetches one numeric page of a folder, newest first.
func (a *Adapter) ListByFolder(ctx context.Context, folder provider.FolderRef, page provider.PageRequest) (*types.MessagePage, error) {
	name := a.folderName(folder)
	mbox, err := a.client.Select(name)
	if err != nil {
		return nil, err
	}

	total := int(mbox.Messages)
	p, size := normalize(page)

	// Page 1 holds the newest messages, i.e. the top of the
	// sequence-number range.
	to := total - (p-1)*size
	if to < 1 {
		return &types.MessagePage{TotalCount: total, HasMore: false}, nil
	}
	from := to - size + 1
	if from < 1 {
		from = 1
	}

	raw, err := a.client.FetchRange(uint32(from), uint32(to))
	if err != nil {
		return nil, err
	}

	messages := make([]types.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		messages = append(messages, a.toMessage(raw[i], folder.Category))
	}

	return &types.MessagePage{
		Messages:   messages,
		TotalCount: total,
		HasMore:    p*size < total,
	}, nil
}

// GetMessage fetches one message by UID from the selected folder,
// including a body-derived preview.
func (a *Adapter) GetMessage(ctx context.Context, id string) (*types.Message, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}
	if err := a.ensureSelected(); err != nil {
		return nil, err
	}

	raw, err := a.client.FetchByUIDs([]uint32{uid})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, &provider.NotFoundError{Kind: "message", Ref: id}
	}

	msg := a.toMessage(raw[0], taxonomy.Classify(a.client.Selected(), a.client.Selected()))

	body, err := a.client.FetchBody(uid)
	if err == nil {
		if env, perr := enmime.ReadEnvelope(bytes.NewReader(body)); perr == nil {
			msg.Preview = preview(env.Text)
		}
	}
	return &msg, nil
}

// Search runs a server-side text search over the selected folder and
// pages the matching UIDs numerically, newest first.
func (a *Adapter) Search(ctx context.Context, query string, page provider.PageRequest) (*types.MessagePage, error) {
	if err := a.ensureSelected(); err != nil {
		return nil, err
	}

	uids, err := a.client.SearchText(query)
	if err != nil {
		return nil, err
	}

	// UID SEARCH returns ascending order; newest first.
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}

	total := len(uids)
	p, size := normalize(page)
	start := (p - 1) * size
	if start >= total {
		return &types.MessagePage{TotalCount: total, HasMore: false}, nil
	}
	end := start + size
	if end > total {
		end = total
	}

	raw, err := a.client.FetchByUIDs(uids[start:end])
	if err != nil {
		return nil, err
	}

	cat := taxonomy.Classify(a.client.Selected(), a.client.Selected())
	messages := make([]types.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		messages = append(messages, a.toMessage(raw[i], cat))
	}

	return &types.MessagePage{
		Messages:   messages,
		TotalCount: total,
		HasMore:    p*size < total,
	}, nil
}

// ListAttachments parses the full message body and lists its
// attachment parts. Attachment ids are part indexes, stable for the
// lifetime of the message.
func (a *Adapter) ListAttachments(ctx context.Context, id string) ([]types.Attachment, error) {
	env, err := a.readEnvelope(id)
	if err != nil {
		return nil, err
	}

	out := make([]types.Attachment, 0, len(env.Attachments))
	for i, part := range env.Attachments {
		out = append(out, types.Attachment{
			ID:       strconv.Itoa(i),
			Filename: part.FileName,
			MimeType: part.ContentType,
			Size:     int64(len(part.Content)),
		})
	}
	return out, nil
}

// DownloadAttachment returns the decoded content of one attachment.
func (a *Adapter) DownloadAttachment(ctx context.Context, id, attachmentID string) ([]byte, error) {
	env, err := a.readEnvelope(id)
	if err != nil {
		return nil, err
	}

	idx, err := strconv.Atoi(attachmentID)
	if err != nil || idx < 0 || idx >= len(env.Attachments) {
		return nil, &provider.NotFoundError{Kind: "attachment", Ref: attachmentID}
	}
	return env.Attachments[idx].Content, nil
}

func (a *Adapter) readEnvelope(id string) (*enmime.Envelope, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}
	if err := a.ensureSelected(); err != nil {
		return nil, err
	}
	body, err := a.client.FetchBody(uid)
	if err != nil {
		return nil, err
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return env, nil
}

// Send delivers a new message over SMTP.
func (a *Adapter) Send(ctx context.Context, msg *types.OutgoingMessage) error {
	return a.sender.Send(msg, "")
}

// Reply sends a reply threading off the original Message-ID and marks
// the original answered.
func (a *Adapter) Reply(ctx context.Context, id string, msg *types.OutgoingMessage) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	if err := a.ensureSelected(); err != nil {
		return err
	}

	inReplyTo := ""
	raw, err := a.client.FetchByUIDs([]uint32{uid})
	if err == nil && len(raw) > 0 && raw[0].Envelope != nil {
		inReplyTo = strings.Trim(raw[0].Envelope.MessageId, "<>")
	}

	if err := a.sender.Send(msg, inReplyTo); err != nil {
		return err
	}
	if err := a.client.StoreFlags([]uint32{uid}, []string{imap.AnsweredFlag}, true); err != nil {
		a.logger.WithError(err).Debug("Failed to flag message answered")
	}
	return nil
}

// Forward delivers the prepared forward payload.
func (a *Adapter) Forward(ctx context.Context, id string, msg *types.OutgoingMessage) error {
	return a.sender.Send(msg, "")
}

// CreateDraft appends a draft to the drafts folder and returns the
// generated Message-ID as the draft id.
func (a *Adapter) CreateDraft(ctx context.Context, msg *types.OutgoingMessage) (string, error) {
	draftID := uuid.NewString() + "@unibox"
	body := a.composeDraft(msg, draftID)

	folder := a.folderName(provider.FolderRef{Category: types.CategoryDrafts})
	if err := a.client.Append(folder, []string{imap.DraftFlag}, body); err != nil {
		return "", err
	}
	return draftID, nil
}

// UpdateDraft replaces a draft in place, keeping its id.
func (a *Adapter) UpdateDraft(ctx context.Context, id string, msg *types.OutgoingMessage) error {
	if err := a.DeleteDraft(ctx, id); err != nil {
		return err
	}
	folder := a.folderName(provider.FolderRef{Category: types.CategoryDrafts})
	return a.client.Append(folder, []string{imap.DraftFlag}, a.composeDraft(msg, id))
}

// DeleteDraft removes a draft by its Message-ID.
func (a *Adapter) DeleteDraft(ctx context.Context, id string) error {
	folder := a.folderName(provider.FolderRef{Category: types.CategoryDrafts})
	if _, err := a.client.Select(folder); err != nil {
		return err
	}

	uids, err := a.client.SearchHeader("Message-Id", "<"+id+">")
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return &provider.NotFoundError{Kind: "draft", Ref: id}
	}
	if err := a.client.StoreFlags(uids, []string{imap.DeletedFlag}, true); err != nil {
		return err
	}
	return a.client.Expunge()
}

func (a *Adapter) composeDraft(msg *types.OutgoingMessage, draftID string) []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Message-Id: <%s>\r\n", draftID))
	buf.WriteString(fmt.Sprintf("From: %s\r\n", a.sender.config.Address))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(msg.BodyText)
	return buf.Bytes()
}

// SetRead toggles the \Seen flag.
func (a *Adapter) SetRead(ctx context.Context, id string, read bool) error {
	return a.storeFlag(id, imap.SeenFlag, read)
}

// SetStarred toggles the \Flagged flag, the IMAP spelling of starred.
func (a *Adapter) SetStarred(ctx context.Context, id string, starred bool) error {
	return a.storeFlag(id, imap.FlaggedFlag, starred)
}

func (a *Adapter) storeFlag(id, flag string, add bool) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	if err := a.ensureSelected(); err != nil {
		return err
	}
	return a.client.StoreFlags([]uint32{uid}, []string{flag}, add)
}

// Delete moves a message to trash when a trash folder is known,
// otherwise flags it deleted and expunges.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	if trash, ok := a.folderNames[types.CategoryTrash]; ok && a.client.Selected() != trash {
		return a.Move(ctx, id, provider.FolderRef{RawName: trash, Category: types.CategoryTrash})
	}

	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	if err := a.ensureSelected(); err != nil {
		return err
	}
	if err := a.client.StoreFlags([]uint32{uid}, []string{imap.DeletedFlag}, true); err != nil {
		return err
	}
	return a.client.Expunge()
}

// Move copies the message to the target folder and expunges it from
// the source.
func (a *Adapter) Move(ctx context.Context, id string, target provider.FolderRef) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	if err := a.ensureSelected(); err != nil {
		return err
	}
	if err := a.client.CopyTo([]uint32{uid}, a.folderName(target)); err != nil {
		return err
	}
	if err := a.client.StoreFlags([]uint32{uid}, []string{imap.DeletedFlag}, true); err != nil {
		return err
	}
	return a.client.Expunge()
}

// Copy copies the message to the target folder.
func (a *Adapter) Copy(ctx context.Context, id string, target provider.FolderRef) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	if err := a.ensureSelected(); err != nil {
		return err
	}
	return a.client.CopyTo([]uint32{uid}, a.folderName(target))
}

// BatchOperate applies one operation to a set of messages in a single
// IMAP round trip where the protocol allows it.
func (a *Adapter) BatchOperate(ctx context.Context, ids []string, op provider.BatchOp) error {
	uids := make([]uint32, 0, len(ids))
	for _, id := range ids {
		uid, err := parseUID(id)
		if err != nil {
			return err
		}
		uids = append(uids, uid)
	}
	if err := a.ensureSelected(); err != nil {
		return err
	}

	switch op {
	case provider.BatchMarkRead:
		return a.client.StoreFlags(uids, []string{imap.SeenFlag}, true)
	case provider.BatchMarkUnread:
		return a.client.StoreFlags(uids, []string{imap.SeenFlag}, false)
	case provider.BatchStar:
		return a.client.StoreFlags(uids, []string{imap.FlaggedFlag}, true)
	case provider.BatchUnstar:
		return a.client.StoreFlags(uids, []string{imap.FlaggedFlag}, false)
	case provider.BatchDelete:
		if err := a.client.StoreFlags(uids, []string{imap.DeletedFlag}, true); err != nil {
			return err
		}
		return a.client.Expunge()
	}
	return fmt.Errorf("unknown batch operation: %s", op)
}

// Sync re-selects the folder, refreshing its counts.
func (a *Adapter) Sync(ctx context.Context, folder provider.FolderRef) error {
	_, err := a.client.Select(a.folderName(folder))
	return err
}

// Disconnect logs out of the IMAP session.
func (a *Adapter) Disconnect(ctx context.Context) error {
	return a.client.Close()
}

// ensureSelected makes sure some folder is selected; message-level
// operations address messages by UID within the selected folder.
func (a *Adapter) ensureSelected() error {
	if a.client.Selected() != "" {
		return nil
	}
	_, err := a.client.Select("INBOX")
	return err
}

// toMessage maps a raw IMAP message onto the canonical shape.
func (a *Adapter) toMessage(msg *imap.Message, cat types.Category) types.Message {
	raw := identity.Raw{
		UID: strconv.FormatUint(uint64(msg.Uid), 10),
	}
	if msg.Envelope != nil {
		raw.MessageID = strings.Trim(msg.Envelope.MessageId, "<>")
		raw.Date = msg.Envelope.Date.Format("2006-01-02T15:04:05Z07:00")
	}

	out := types.Message{
		Identity:       identity.Resolve(raw, types.ProviderIMAP),
		DisplayKey:     identity.DisplayKey(raw, types.ProviderIMAP),
		FolderCategory: cat,
		HasAttachments: hasAttachments(msg.BodyStructure),
		ReceivedAt:     msg.InternalDate,
		ProviderRaw: map[string]string{
			"uid": raw.UID,
		},
	}

	if msg.Envelope != nil {
		out.Subject = msg.Envelope.Subject
		if out.ReceivedAt.IsZero() {
			out.ReceivedAt = msg.Envelope.Date
		}
		if len(msg.Envelope.From) > 0 {
			addr := msg.Envelope.From[0]
			out.SenderName = addr.PersonalName
			out.SenderAddress = addr.Address()
		}
		out.ProviderRaw["message_id"] = raw.MessageID
	}

	for _, flag := range msg.Flags {
		switch flag {
		case imap.SeenFlag:
			out.IsRead = true
		case imap.FlaggedFlag:
			out.IsStarred = true
		}
	}
	return out
}

// hasAttachments walks the body structure looking for attachment
// dispositions or non-inline leaf parts.
func hasAttachments(bs *imap.BodyStructure) bool {
	if bs == nil {
		return false
	}
	if strings.EqualFold(bs.Disposition, "attachment") {
		return true
	}
	for _, part := range bs.Parts {
		if hasAttachments(part) {
			return true
		}
	}
	return false
}

func normalize(page provider.PageRequest) (int, int) {
	p := page.Page
	if p < 1 {
		p = 1
	}
	size := page.PageSize
	if size < 1 {
		size = 25
	}
	return p, size
}

func parseUID(id string) (uint32, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, &provider.NotFoundError{Kind: "message", Ref: id}
	}
	return uint32(uid), nil
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > 200 {
		return string(runes[:200])
	}
	return text
}
