package imapmail

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/brandon/unibox/internal/provider"
)

// Config holds the connection settings for one IMAP/SMTP mailbox.
type Config struct {
	MailboxID string
	Address   string

	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
	Username string
	Password string

	Timeout time.Duration
}

// Client wraps an IMAP client connection. Connections are lazy: every
// operation connects on first use and reuses the session afterwards.
type Client struct {
	config    Config
	client    *client.Client
	logger    *logrus.Logger
	connected bool
	selected  string
}

// NewClient creates a new IMAP client (does not connect immediately).
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		config: cfg,
		logger: logger,
	}
}

// Connect establishes and authenticates the IMAP session.
func (c *Client) Connect() error {
	if c.connected && c.client != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.config.IMAPHost, c.config.IMAPPort)

	cl, err := client.DialTLS(addr, &tls.Config{
		ServerName: c.config.IMAPHost,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return &provider.TransportError{Op: "imap dial", Cause: err}
	}
	cl.Timeout = c.config.Timeout

	if err := cl.Login(c.config.Username, c.config.Password); err != nil {
		cl.Logout() //nolint:errcheck
		return &provider.AuthExpiredError{Mailbox: c.config.MailboxID, Message: err.Error()}
	}

	c.client = cl
	c.connected = true
	c.selected = ""
	c.logger.WithField("mailbox", c.config.MailboxID).Info("Connected to IMAP server")
	return nil
}

// Close logs out and drops the session.
func (c *Client) Close() error {
	if c.client != nil {
		err := c.client.Logout()
		c.client = nil
		c.connected = false
		c.selected = ""
		return err
	}
	return nil
}

// mailboxInfo is one raw folder with its unseen count.
type mailboxInfo struct {
	Name   string
	Unseen int
}

// ListMailboxes lists all folders with their unseen counts.
func (c *Client) ListMailboxes() ([]mailboxInfo, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.List("", "*", mailboxes)
	}()

	var names []string
	for m := range mailboxes {
		names = append(names, m.Name)
	}

	if err := <-done; err != nil {
		return nil, &provider.TransportError{Op: "imap list", Cause: err}
	}

	infos := make([]mailboxInfo, 0, len(names))
	for _, name := range names {
		info := mailboxInfo{Name: name}
		status, err := c.client.Status(name, []imap.StatusItem{imap.StatusUnseen})
		if err != nil {
			c.logger.WithError(err).WithField("folder", name).Debug("Failed to read folder status")
		} else {
			info.Unseen = int(status.Unseen)
		}
		infos = append(infos, info)
	}
	c.selected = ""
	return infos, nil
}

// Select selects a folder, caching the selection across calls, and
// returns its status.
func (c *Client) Select(name string) (*imap.MailboxStatus, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}

	mbox, err := c.client.Select(name, false)
	if err != nil {
		return nil, &provider.NotFoundError{Kind: "folder", Ref: name}
	}
	c.selected = name
	return mbox, nil
}

// Selected returns the name of the currently selected folder.
func (c *Client) Selected() string { return c.selected }

// FetchRange fetches envelope, flags, UID and body structure for a
// sequence range of the selected folder.
func (c *Client) FetchRange(from, to uint32) ([]*imap.Message, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, to)

	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		imap.FetchBodyStructure,
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.Fetch(seqSet, items, messages)
	}()

	var out []*imap.Message
	for msg := range messages {
		out = append(out, msg)
	}

	if err := <-done; err != nil {
		return nil, &provider.TransportError{Op: "imap fetch", Cause: err}
	}
	return out, nil
}

// FetchBody fetches the full RFC822 body for one UID in the selected
// folder.
func (c *Client) FetchBody(uid uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var body []byte
	for msg := range messages {
		if literal := msg.GetBody(section); literal != nil {
			body = readLiteral(literal)
		}
	}

	if err := <-done; err != nil {
		return nil, &provider.TransportError{Op: "imap uid fetch", Cause: err}
	}
	if body == nil {
		return nil, &provider.NotFoundError{Kind: "message", Ref: fmt.Sprintf("%d", uid)}
	}
	return body, nil
}

// FetchByUIDs fetches envelope-level data for the given UIDs in the
// selected folder.
func (c *Client) FetchByUIDs(uids []uint32) ([]*imap.Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		imap.FetchBodyStructure,
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var out []*imap.Message
	for msg := range messages {
		out = append(out, msg)
	}

	if err := <-done; err != nil {
		return nil, &provider.TransportError{Op: "imap uid fetch", Cause: err}
	}
	return out, nil
}

// SearchText runs a UID SEARCH TEXT query against the selected folder.
func (c *Client) SearchText(query string) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Text = []string{query}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, &provider.TransportError{Op: "imap search", Cause: err}
	}
	return uids, nil
}

// StoreFlags adds or removes flags on a set of UIDs in the selected
// folder.
func (c *Client) StoreFlags(uids []uint32, flags []string, add bool) error {
	if len(uids) == 0 {
		return nil
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	item := flagsOpItem(add)
	values := make([]interface{}, len(flags))
	for i, f := range flags {
		values[i] = f
	}

	if err := c.client.UidStore(seqSet, item, values, nil); err != nil {
		return &provider.TransportError{Op: "imap store", Cause: err}
	}
	return nil
}

// flagsOpItem builds the silent STORE item for adding or removing
// flags.
func flagsOpItem(add bool) imap.StoreItem {
	op := imap.FlagsOp(imap.AddFlags)
	if !add {
		op = imap.FlagsOp(imap.RemoveFlags)
	}
	return imap.FormatFlagsOp(op, true)
}

// CopyTo copies UIDs from the selected folder to target.
func (c *Client) CopyTo(uids []uint32, target string) error {
	if len(uids) == 0 {
		return nil
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	if err := c.client.UidCopy(seqSet, target); err != nil {
		return &provider.TransportError{Op: "imap copy", Cause: err}
	}
	return nil
}

// Append stores a raw message into a folder with the given flags.
func (c *Client) Append(folder string, flags []string, body []byte) error {
	if err := c.Connect(); err != nil {
		return err
	}
	buf := bytes.NewBuffer(body)
	if err := c.client.Append(folder, flags, time.Now(), buf); err != nil {
		return &provider.TransportError{Op: "imap append", Cause: err}
	}
	return nil
}

// SearchHeader runs a UID SEARCH for messages carrying the given
// header value in the selected folder.
func (c *Client) SearchHeader(name, value string) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Header.Set(name, value)

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, &provider.TransportError{Op: "imap search", Cause: err}
	}
	return uids, nil
}

// Expunge permanently removes messages flagged \Deleted from the
// selected folder.
func (c *Client) Expunge() error {
	if err := c.client.Expunge(nil); err != nil {
		return &provider.TransportError{Op: "imap expunge", Cause: err}
	}
	return nil
}

// readLiteral drains an IMAP literal into a byte slice.
func readLiteral(literal imap.Literal) []byte {
	body := make([]byte, 0, 8192)
	buf := make([]byte, 1024)
	for {
		n, err := literal.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
	}
	return body
}
