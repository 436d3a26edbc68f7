package graphapi

import (
	"context"
	"encoding/json"
	"fmt"
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

func testAdapter(t *testing.T, handler http.Handler) *Adapter {
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

	return NewAdapter(context.Background(), Config{
		MailboxID:    "corp",
		Address:      "corp@example.com",
		BaseURL:      srv.URL + "/v1.0",
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "rtok",
		TokenURL:     srv.URL + "/token",
	}, logger)
}

func TestListFolders(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/me/mailFolders", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"value":[
			{"id":"AAMk001=","displayName":"Inbox","unreadItemCount":12,
			 "childFolders":[{"id":"AAMk002=","displayName":"Receipts","unreadItemCount":1}]},
			{"id":"AAMk003=","displayName":"Sent Items","unreadItemCount":0}
		]}`)
	}))

	folders, err := a.ListFolders(context.Background())
	require.NoError(t, err)
	require.Len(t, folders, 2)

	assert.Equal(t, types.CategoryInbox, folders[0].Category)
	assert.Equal(t, 12, folders[0].UnreadCount)
	require.Len(t, folders[0].Children, 1)
	assert.Equal(t, types.CategoryUnknown, folders[0].Children[0].Category)
	assert.Equal(t, types.CategorySent, folders[1].Category)
}

func TestListFoldersFollowsNextLink(t *testing.T) {
	var srvURL string
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1.0/me/mailFolders":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"value": []map[string]interface{}{
					{"id": "AAMk001=", "displayName": "Inbox"},
					{"id": "AAMk002=", "displayName": "Sent Items"},
				},
				"@odata.nextLink": srvURL + "/v1.0/folderpage2",
			})
		case "/v1.0/folderpage2":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"value": []map[string]interface{}{
					{"id": "AAMk003=", "displayName": "Receipts"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	srvURL = a.client.baseURL[:len(a.client.baseURL)-len("/v1.0")]

	folders, err := a.ListFolders(context.Background())
	require.NoError(t, err)
	require.Len(t, folders, 3)
	assert.Equal(t, "Receipts", folders[2].RawName)
}

func TestRefreshTokenHitsTokenEndpoint(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, tokenCalls)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	a := NewAdapter(context.Background(), Config{
		MailboxID:    "corp",
		BaseURL:      srv.URL + "/v1.0",
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "rtok",
		TokenURL:     srv.URL + "/token",
	}, logger)

	// Each refresh must reach the token endpoint even though the
	// previous token is nowhere near expiry.
	require.NoError(t, a.RefreshToken(context.Background()))
	require.NoError(t, a.RefreshToken(context.Background()))
	assert.Equal(t, 2, tokenCalls)
}

func TestListByFolderCursor(t *testing.T) {
	var srvURL string
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1.0/me/mailFolders/inbox/messages":
			// Special folders route through the well-known name, and
			// the first-page query arrives fully encoded.
			assert.Equal(t, "true", r.URL.Query().Get("$count"))
			assert.Equal(t, "1", r.URL.Query().Get("$top"))
			assert.Equal(t, "receivedDateTime desc", r.URL.Query().Get("$orderby"))
			assert.NotContains(t, r.RequestURI, " ")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"value": []map[string]interface{}{
					{"id": "AAMkM1=", "subject": "first", "isRead": false},
				},
				"@odata.nextLink": srvURL + "/v1.0/page2",
				"@odata.count":    2,
			})
		case "/v1.0/page2":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"value": []map[string]interface{}{
					{"id": "AAMkM2=", "subject": "second", "isRead": true},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	srvURL = a.client.baseURL[:len(a.client.baseURL)-len("/v1.0")]

	page, err := a.ListByFolder(context.Background(), provider.FolderRef{Category: types.CategoryInbox}, provider.PageRequest{PageSize: 1})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "AAMkM1=", page.Messages[0].Identity)
	assert.Equal(t, 2, page.TotalCount)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextToken)

	// The next page is fetched through the provider's own link.
	page, err = a.ListByFolder(context.Background(), provider.FolderRef{Category: types.CategoryInbox}, provider.PageRequest{Token: page.NextToken})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "AAMkM2=", page.Messages[0].Identity)
	assert.False(t, page.HasMore)
	assert.Equal(t, -1, page.TotalCount, "no count on the second page")
}

func TestUserFolderRoutesByRawID(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/me/mailFolders/AAMkCustom=/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"value":[]}`)
	}))

	_, err := a.ListByFolder(context.Background(), provider.FolderRef{
		RawID: "AAMkCustom=", RawName: "Receipts", Category: types.CategoryUnknown,
	}, provider.PageRequest{})
	require.NoError(t, err)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, provider.IsAuthExpired},
		{"not found", http.StatusNotFound, provider.IsNotFound},
		{"server error", http.StatusBadGateway, provider.IsTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			_, err := a.GetMessage(context.Background(), "AAMkX=")
			require.Error(t, err)
			assert.True(t, tt.check(err))
		})
	}
}

func TestSetStarredPayload(t *testing.T) {
	var got map[string]interface{}
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	}))

	require.NoError(t, a.SetStarred(context.Background(), "AAMkX=", true))
	flag, ok := got["flag"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "flagged", flag["flagStatus"])
}

func TestDeleteMovesToTrash(t *testing.T) {
	var got map[string]string
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/me/messages/AAMkX=/move", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	}))

	require.NoError(t, a.Delete(context.Background(), "AAMkX="))
	assert.Equal(t, "deleteditems", got["destinationId"])
}

func TestToMessage(t *testing.T) {
	wire := wireMessage{
		ID:                "AAMkM1=",
		InternetMessageID: "<net-1@example.com>",
		Subject:           "Quarterly numbers",
		BodyPreview:       "Attached are",
		IsRead:            true,
		HasAttachments:    true,
	}
	wire.Flag = &struct {
		FlagStatus string `json:"flagStatus"`
	}{FlagStatus: "flagged"}

	msg := toMessage(wire)
	assert.Equal(t, "AAMkM1=", msg.Identity)
	assert.Equal(t, "AAMkM1=", msg.DisplayKey)
	assert.True(t, msg.IsRead)
	assert.True(t, msg.IsStarred)
	assert.True(t, msg.HasAttachments)

	// No id at all: not a mutation target, but still renderable.
	anon := toMessage(wireMessage{Subject: "no ids"})
	assert.Empty(t, anon.Identity)
	assert.NotEmpty(t, anon.DisplayKey)
}
