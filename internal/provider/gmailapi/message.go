package gmailapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/brandon/unibox/internal/identity"
	"github.com/brandon/unibox/internal/taxonomy"
	"github.com/brandon/unibox/pkg/types"
)

// toMessage maps a Gmail message onto the canonical shape. Identity
// resolution walks the provider's fallback chain; the raw id is a
// candidate but surrogate draft/thread placeholders are rejected
// there, not here.
func toMessage(m *gmail.Message) types.Message {
	raw := identity.Raw{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Date:     fmt.Sprintf("%d", m.InternalDate),
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			raw.Headers = append(raw.Headers, identity.Header{Name: h.Name, Value: h.Value})
		}
	}

	out := types.Message{
		Identity:       identity.Resolve(raw, types.ProviderGmail),
		DisplayKey:     identity.DisplayKey(raw, types.ProviderGmail),
		FolderCategory: categoryFromLabels(m.LabelIds),
		IsRead:         !hasLabel(m.LabelIds, "UNREAD"),
		IsStarred:      hasLabel(m.LabelIds, "STARRED"),
		Subject:        headerValue(m, "Subject"),
		Preview:        m.Snippet,
		ProviderRaw: map[string]string{
			"id":        m.Id,
			"thread_id": m.ThreadId,
		},
	}

	if from := headerValue(m, "From"); from != "" {
		if addr, err := mail.ParseAddress(from); err == nil {
			out.SenderName = addr.Name
			out.SenderAddress = addr.Address
		} else {
			out.SenderAddress = from
		}
	}

	if m.InternalDate > 0 {
		out.ReceivedAt = time.UnixMilli(m.InternalDate)
	} else if date := headerValue(m, "Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			out.ReceivedAt = t
		}
	}

	if m.Payload != nil {
		walkParts(m.Payload, func(part *gmail.MessagePart) {
			if part.Body != nil && part.Body.AttachmentId != "" {
				out.HasAttachments = true
			}
		})
	}

	return out
}

// categoryFromLabels classifies a message by its label set. The label
// list order carries no meaning; candidates are ranked by taxonomy
// priority, so INBOX wins over STARRED regardless of position.
// Messages carrying no classifiable label stay unknown.
func categoryFromLabels(labels []string) types.Category {
	found := make(map[types.Category]bool, len(labels))
	for _, l := range labels {
		if cat := taxonomy.Classify(l, ""); taxonomy.Canonical(cat) {
			found[cat] = true
		}
	}
	for _, cat := range taxonomy.QuickFilters() {
		if found[cat] {
			return cat
		}
	}
	return types.CategoryUnknown
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

func headerValue(m *gmail.Message, name string) string {
	if m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, child := range part.Parts {
		walkParts(child, fn)
	}
}

// encodeRaw renders an outgoing message as base64url RFC822, the wire
// shape the send and draft endpoints expect.
func encodeRaw(from string, msg *types.OutgoingMessage, inReplyTo string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	if len(msg.Cc) > 0 {
		b.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(msg.Cc, ", ")))
	}
	if len(msg.Bcc) > 0 {
		b.WriteString(fmt.Sprintf("Bcc: %s\r\n", strings.Join(msg.Bcc, ", ")))
	}
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	if inReplyTo != "" {
		b.WriteString(fmt.Sprintf("In-Reply-To: %s\r\n", inReplyTo))
		b.WriteString(fmt.Sprintf("References: %s\r\n", inReplyTo))
	}
	if msg.BodyHTML != "" {
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(msg.BodyHTML)
	} else {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.BodyText)
	}
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

func asGoogleAPIError(err error, target **googleapi.Error) bool {
	return errors.As(err, target)
}
