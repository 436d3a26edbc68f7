package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/brandon/unibox/pkg/types"
)

// Header is a single raw message header as delivered by a provider.
type Header struct {
	Name  string
	Value string
}

// Raw carries every field a provider payload may express a message
// identity through. Adapters populate whichever fields their provider
// emits and leave the rest empty.
type Raw struct {
	ProviderMessageID string
	InternetMessageID string
	ID                string
	ThreadID          string
	MessageID         string
	UID               string
	Date              string
	Headers           []Header
}

// surrogatePattern matches transient thread/draft placeholder ids that
// the consumer REST provider emits in place of a real message id. These
// must never be used as mutation targets.
var surrogatePattern = regexp.MustCompile(`^r-?[0-9]+$`)

// Resolve derives the durable identifier for a raw message, walking the
// provider-specific fallback chain and returning the first candidate
// that validates. It returns "" when no candidate validates; callers
// must treat that as "cannot select or act on this message".
func Resolve(raw Raw, kind types.ProviderKind) string {
	switch kind {
	case types.ProviderGmail:
		return resolveGmail(raw)
	case types.ProviderGraph:
		return firstValid(raw.ID, raw.MessageID, raw.InternetMessageID)
	case types.ProviderIMAP:
		return firstValid(raw.UID, raw.ID, raw.MessageID)
	}
	return ""
}

func resolveGmail(raw Raw) string {
	if v := stripAngles(raw.ProviderMessageID); valid(v) {
		return v
	}
	if v := stripAngles(raw.InternetMessageID); valid(v) {
		return v
	}
	if v := strings.TrimSpace(raw.ID); valid(v) && !surrogate(v) {
		return v
	}
	if v := strings.TrimSpace(raw.ThreadID); valid(v) && !surrogate(v) {
		return v
	}
	if v := strings.TrimSpace(raw.MessageID); valid(v) {
		return v
	}
	for _, h := range raw.Headers {
		if strings.EqualFold(h.Name, "Message-ID") {
			if v := stripAngles(h.Value); valid(v) {
				return v
			}
		}
	}
	return ""
}

// DisplayKey derives a key for list rendering only. It prefers the
// durable identity, falls back to a thread id + date composite, and
// finally to a random token. The result must never be used as a
// mutation target.
func DisplayKey(raw Raw, kind types.ProviderKind) string {
	if id := Resolve(raw, kind); id != "" {
		return id
	}
	if raw.ThreadID != "" {
		return raw.ThreadID + ":" + raw.Date
	}
	return uuid.NewString()
}

func firstValid(candidates ...string) string {
	for _, c := range candidates {
		if v := strings.TrimSpace(c); valid(v) {
			return v
		}
	}
	return ""
}

func valid(v string) bool {
	return v != ""
}

func surrogate(v string) bool {
	return surrogatePattern.MatchString(v)
}

func stripAngles(v string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(v), "<>"))
}
