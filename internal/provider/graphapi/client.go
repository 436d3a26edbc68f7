package graphapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/brandon/unibox/internal/provider"
)

// Config holds the connection settings for one Graph-style mailbox.
type Config struct {
	MailboxID    string
	Address      string
	BaseURL      string
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
	Timeout      time.Duration
}

// client is a thin REST client for the Graph-style mail API. Payload
// shapes outside the fields decoded here are opaque.
type client struct {
	baseURL     string
	httpClient  *http.Client
	tokenSource *provider.RenewableTokenSource
	mailboxID   string
}

func newClient(ctx context.Context, cfg Config) *client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
	}

	ts := provider.NewRenewableTokenSource(func() oauth2.TokenSource {
		return oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	})

	return &client{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: timeout},
		tokenSource: ts,
		mailboxID:   cfg.MailboxID,
	}
}

// do issues one request and decodes the response into out (when out
// is non-nil). Failures map onto the typed error taxonomy: 401 is
// AuthExpired, 404 is NotFound, network errors and 5xx are
// TransportError.
func (c *client) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokenSource.Token()
	if err != nil {
		return &provider.AuthExpiredError{Mailbox: c.mailboxID, Message: err.Error()}
	}
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &provider.TransportError{Op: method + " " + url, Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &provider.AuthExpiredError{Mailbox: c.mailboxID, Message: resp.Status}
	case resp.StatusCode == http.StatusNotFound:
		return &provider.NotFoundError{Kind: "resource", Ref: url}
	case resp.StatusCode >= 500:
		return &provider.TransportError{Op: method + " " + url, Cause: fmt.Errorf("status %s", resp.Status)}
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *client) get(ctx context.Context, url string, out interface{}) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

func (c *client) getRaw(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, &provider.AuthExpiredError{Mailbox: c.mailboxID, Message: err.Error()}
	}
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &provider.TransportError{Op: "GET " + url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &provider.TransportError{Op: "GET " + url, Cause: fmt.Errorf("status %s", resp.Status)}
	}
	return io.ReadAll(resp.Body)
}

// Wire shapes: only the fields the canonical model consumes are
// decoded.

type folderList struct {
	Value    []wireFolder `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

type wireFolder struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"displayName"`
	UnreadCount  int          `json:"unreadItemCount"`
	ChildFolders []wireFolder `json:"childFolders"`
}

type messageList struct {
	Value    []wireMessage `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
	Count    *int          `json:"@odata.count"`
}

type wireMessage struct {
	ID                string    `json:"id"`
	InternetMessageID string    `json:"internetMessageId"`
	Subject           string    `json:"subject"`
	BodyPreview       string    `json:"bodyPreview"`
	IsRead            bool      `json:"isRead"`
	HasAttachments    bool      `json:"hasAttachments"`
	ReceivedDateTime  time.Time `json:"receivedDateTime"`
	From              *struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	Flag *struct {
		FlagStatus string `json:"flagStatus"`
	} `json:"flag"`
}

type attachmentList struct {
	Value []wireAttachment `json:"value"`
}

type wireAttachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}
