package imapmail

import (
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/brandon/unibox/internal/provider"
	"github.com/brandon/unibox/pkg/types"
)

func testAdapter() *Adapter {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewAdapter(Config{
		MailboxID: "legacy",
		Address:   "legacy@example.com",
		IMAPHost:  "imap.example.com",
		IMAPPort:  993,
		SMTPHost:  "smtp.example.com",
		SMTPPort:  587,
		Username:  "legacy@example.com",
		Password:  "hunter2",
	}, logger)
}

func TestToMessage(t *testing.T) {
	a := testAdapter()
	received := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	msg := &imap.Message{
		Uid:          4711,
		Flags:        []string{imap.SeenFlag, imap.FlaggedFlag},
		InternalDate: received,
		Envelope: &imap.Envelope{
			Subject:   "Server maintenance",
			MessageId: "<maint-1@example.com>",
			Date:      received,
			From: []*imap.Address{
				{PersonalName: "Ops Team", MailboxName: "ops", HostName: "example.com"},
			},
		},
	}

	out := a.toMessage(msg, types.CategoryInbox)
	assert.Equal(t, "4711", out.Identity)
	assert.Equal(t, "4711", out.DisplayKey)
	assert.Equal(t, types.CategoryInbox, out.FolderCategory)
	assert.True(t, out.IsRead)
	assert.True(t, out.IsStarred)
	assert.Equal(t, "Server maintenance", out.Subject)
	assert.Equal(t, "Ops Team", out.SenderName)
	assert.Equal(t, "ops@example.com", out.SenderAddress)
	assert.Equal(t, received, out.ReceivedAt)
	assert.Equal(t, "maint-1@example.com", out.ProviderRaw["message_id"])
}

func TestToMessageUnreadPlain(t *testing.T) {
	a := testAdapter()
	out := a.toMessage(&imap.Message{Uid: 1}, types.CategoryUnknown)
	assert.False(t, out.IsRead)
	assert.False(t, out.IsStarred)
	assert.False(t, out.HasAttachments)
}

func TestHasAttachments(t *testing.T) {
	assert.False(t, hasAttachments(nil))
	assert.False(t, hasAttachments(&imap.BodyStructure{MIMEType: "text", MIMESubType: "plain"}))
	assert.True(t, hasAttachments(&imap.BodyStructure{Disposition: "attachment"}))
	assert.True(t, hasAttachments(&imap.BodyStructure{Disposition: "ATTACHMENT"}))

	nested := &imap.BodyStructure{
		MIMEType: "multipart", MIMESubType: "mixed",
		Parts: []*imap.BodyStructure{
			{MIMEType: "text", MIMESubType: "plain"},
			{Disposition: "attachment"},
		},
	}
	assert.True(t, hasAttachments(nested))
}

func TestFolderNameRouting(t *testing.T) {
	a := testAdapter()

	// Explicit names win.
	assert.Equal(t, "Custom", a.folderName(provider.FolderRef{RawName: "Custom"}))
	assert.Equal(t, "Custom", a.folderName(provider.FolderRef{RawID: "Custom"}))

	// Before any listing, category routing falls back to defaults.
	assert.Equal(t, "Sent", a.folderName(provider.FolderRef{Category: types.CategorySent}))
	assert.Equal(t, "INBOX", a.folderName(provider.FolderRef{Category: types.CategoryInbox}))

	// After a listing, the learned server names take over.
	a.folderNames = map[types.Category]string{
		types.CategorySent: "Sent Messages",
	}
	assert.Equal(t, "Sent Messages", a.folderName(provider.FolderRef{Category: types.CategorySent}))
}

func TestNormalize(t *testing.T) {
	p, size := normalize(provider.PageRequest{})
	assert.Equal(t, 1, p)
	assert.Equal(t, 25, size)

	p, size = normalize(provider.PageRequest{Page: 3, PageSize: 10})
	assert.Equal(t, 3, p)
	assert.Equal(t, 10, size)
}

func TestParseUID(t *testing.T) {
	uid, err := parseUID("4711")
	assert.NoError(t, err)
	assert.Equal(t, uint32(4711), uid)

	_, err = parseUID("not-a-uid")
	assert.True(t, provider.IsNotFound(err))
	_, err = parseUID("")
	assert.True(t, provider.IsNotFound(err))
}

func TestFlagsOpItem(t *testing.T) {
	assert.Equal(t, imap.StoreItem("+FLAGS.SILENT"), flagsOpItem(true))
	assert.Equal(t, imap.StoreItem("-FLAGS.SILENT"), flagsOpItem(false))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("  short  "))
	long := strings.Repeat("a", 500)
	assert.Len(t, preview(long), 200)

	// Truncation lands on a rune boundary, never mid-sequence.
	multi := strings.Repeat("é", 300)
	got := preview(multi)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 200, utf8.RuneCountInString(got))
}

func TestCompose(t *testing.T) {
	a := testAdapter()
	msg := &types.OutgoingMessage{
		To:       []string{"to@example.com"},
		Cc:       []string{"cc@example.com"},
		Subject:  "Hello",
		BodyText: "plain body",
	}

	raw := string(a.sender.compose(msg, "parent@example.com"))
	assert.Contains(t, raw, "From: legacy@example.com\r\n")
	assert.Contains(t, raw, "To: to@example.com\r\n")
	assert.Contains(t, raw, "Cc: cc@example.com\r\n")
	assert.Contains(t, raw, "In-Reply-To: <parent@example.com>\r\n")
	assert.Contains(t, raw, "Content-Type: text/plain")
	assert.Contains(t, raw, "plain body")

	html := string(a.sender.compose(&types.OutgoingMessage{
		To: []string{"to@example.com"}, BodyHTML: "<p>rich</p>",
	}, ""))
	assert.Contains(t, html, "Content-Type: text/html")
	assert.NotContains(t, html, "In-Reply-To")
}

func TestComposeDraftCarriesMessageID(t *testing.T) {
	a := testAdapter()
	raw := string(a.composeDraft(&types.OutgoingMessage{
		To: []string{"to@example.com"}, Subject: "Draft", BodyText: "wip",
	}, "draft-id@unibox"))
	assert.Contains(t, raw, "Message-Id: <draft-id@unibox>\r\n")
	assert.Contains(t, raw, "Subject: Draft\r\n")
}
