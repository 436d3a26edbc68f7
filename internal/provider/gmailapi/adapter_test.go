package gmailapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/unibox/internal/provider"
	"github.com/brandon/unibox/pkg/types"
)

func testServiceAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.Handle("/", handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	a, err := NewAdapter(context.Background(), Config{
		MailboxID:    "personal",
		Address:      "me@example.com",
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "rtok",
		TokenURL:     srv.URL + "/token",
		Endpoint:     srv.URL,
	}, logger)
	require.NoError(t, err)
	return a
}

type modifyPayload struct {
	AddLabelIds    []string `json:"addLabelIds"`
	RemoveLabelIds []string `json:"removeLabelIds"`
}

func TestMoveSwapsFolderLabels(t *testing.T) {
	var got *modifyPayload
	a := testServiceAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/gmail/v1/users/me/messages/m1":
			io.WriteString(w, `{"id":"m1","labelIds":["UNREAD","STARRED","SPAM"]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/gmail/v1/users/me/messages/m1/modify":
			got = &modifyPayload{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
			io.WriteString(w, `{"id":"m1"}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	require.NoError(t, a.Move(context.Background(), "m1", provider.FolderRef{Category: types.CategoryInbox}))
	require.NotNil(t, got)
	assert.Equal(t, []string{"INBOX"}, got.AddLabelIds)
	// Only the current folder label goes; flag labels stay put, and
	// the target is never in the removal set.
	assert.Equal(t, []string{"SPAM"}, got.RemoveLabelIds)
}

func TestMoveToArchiveIsRemoveOnly(t *testing.T) {
	var got *modifyPayload
	a := testServiceAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/gmail/v1/users/me/messages/m2":
			io.WriteString(w, `{"id":"m2","labelIds":["INBOX","STARRED","Label_7"]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/gmail/v1/users/me/messages/m2/modify":
			got = &modifyPayload{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
			io.WriteString(w, `{"id":"m2"}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	require.NoError(t, a.Move(context.Background(), "m2", provider.FolderRef{Category: types.CategoryArchive}))
	require.NotNil(t, got)
	assert.Empty(t, got.AddLabelIds)
	assert.Equal(t, []string{"INBOX", "Label_7"}, got.RemoveLabelIds)
}

func TestIsFolderLabel(t *testing.T) {
	assert.True(t, isFolderLabel("INBOX"))
	assert.True(t, isFolderLabel("TRASH"))
	assert.True(t, isFolderLabel("SPAM"))
	assert.True(t, isFolderLabel("Label_42"))
	assert.False(t, isFolderLabel("UNREAD"))
	assert.False(t, isFolderLabel("STARRED"))
	assert.False(t, isFolderLabel("SENT"))
	assert.False(t, isFolderLabel("DRAFT"))
}
