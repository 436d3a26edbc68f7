package unibox

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/brandon/unibox/internal/cache"
	"github.com/brandon/unibox/internal/config"
	"github.com/brandon/unibox/internal/provider"
	"github.com/brandon/unibox/internal/provider/gmailapi"
	"github.com/brandon/unibox/internal/provider/graphapi"
	"github.com/brandon/unibox/internal/provider/imapmail"
	"github.com/brandon/unibox/pkg/types"
)

// entry pairs a registered mailbox with its adapter.
type entry struct {
	mailbox types.Mailbox
	adapter provider.Adapter
}

// Manager is the aggregation core: it owns the registered mailboxes,
// dispatches to the adapter matching each mailbox's provider kind, and
// runs the folder cache read-through/write-through.
type Manager struct {
	mu       sync.Mutex
	entries  map[string]*entry
	sessions map[string]*Session
	store    cache.FolderStore
	logger   *logrus.Logger
	pageSize int
}

// NewManager builds adapters for every configured mailbox. Adapter
// selection is a tagged-union dispatch on the provider kind; nothing
// downstream inspects provider payloads.
func NewManager(ctx context.Context, cfg *config.Config, store cache.FolderStore, logger *logrus.Logger) (*Manager, error) {
	m := &Manager{
		entries:  make(map[string]*entry),
		sessions: make(map[string]*Session),
		store:    store,
		logger:   logger,
		pageSize: cfg.PageSize,
	}

	for i := range cfg.Mailboxes {
		mc := &cfg.Mailboxes[i]
		adapter, err := buildAdapter(ctx, mc, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build adapter for mailbox %s: %w", mc.ID, err)
		}
		m.entries[mc.ID] = &entry{
			mailbox: types.Mailbox{
				ID:          mc.ID,
				Provider:    mc.Provider,
				Address:     mc.Address,
				DisplayName: mc.DisplayName,
				Verified:    true,
			},
			adapter: adapter,
		}
	}
	return m, nil
}

func buildAdapter(ctx context.Context, mc *config.MailboxConfig, logger *logrus.Logger) (provider.Adapter, error) {
	switch mc.Provider {
	case types.ProviderGmail:
		return gmailapi.NewAdapter(ctx, gmailapi.Config{
			MailboxID:    mc.ID,
			Address:      mc.Address,
			ClientID:     mc.ClientID,
			ClientSecret: mc.ClientSecret,
			RefreshToken: mc.RefreshToken,
			TokenURL:     mc.TokenURL,
		}, logger)
	case types.ProviderGraph:
		return graphapi.NewAdapter(ctx, graphapi.Config{
			MailboxID:    mc.ID,
			Address:      mc.Address,
			BaseURL:      mc.BaseURL,
			ClientID:     mc.ClientID,
			ClientSecret: mc.ClientSecret,
			RefreshToken: mc.RefreshToken,
			TokenURL:     mc.TokenURL,
		}, logger), nil
	case types.ProviderIMAP:
		return imapmail.NewAdapter(imapmail.Config{
			MailboxID: mc.ID,
			Address:   mc.Address,
			IMAPHost:  mc.IMAPHost,
			IMAPPort:  mc.IMAPPort,
			SMTPHost:  mc.SMTPHost,
			SMTPPort:  mc.SMTPPort,
			Username:  mc.Username,
			Password:  mc.Password,
		}, logger), nil
	}
	return nil, fmt.Errorf("unknown provider kind: %s", mc.Provider)
}

// Mailboxes lists the registered mailboxes.
func (m *Manager) Mailboxes() []types.Mailbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Mailbox, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.mailbox)
	}
	return out
}

func (m *Manager) entryFor(mailboxID string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[mailboxID]
	if !ok {
		return nil, &provider.NotFoundError{Kind: "mailbox", Ref: mailboxID}
	}
	return e, nil
}

// CachedFolders returns the instantly renderable folder skeleton from
// the persistent cache; it never performs network I/O and never
// fails.
func (m *Manager) CachedFolders(mailboxID string) ([]types.Folder, error) {
	e, err := m.entryFor(mailboxID)
	if err != nil {
		return nil, err
	}
	return m.store.Read(e.mailbox.Provider, mailboxID), nil
}

// RefreshFolders fetches the live folder list, writes through to the
// cache, and returns it. A cache write failure is logged, not
// surfaced; the live data is still returned.
func (m *Manager) RefreshFolders(ctx context.Context, mailboxID string) ([]types.Folder, error) {
	e, err := m.entryFor(mailboxID)
	if err != nil {
		return nil, err
	}

	var folders []types.Folder
	err = m.withAuthRetry(ctx, e.adapter, func() error {
		var ferr error
		folders, ferr = e.adapter.ListFolders(ctx)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	if werr := m.store.Write(e.mailbox.Provider, mailboxID, folders); werr != nil {
		m.logger.WithError(werr).WithField("mailbox", mailboxID).Warn("Failed to write folder cache")
	}
	return folders, nil
}

// Select opens a browse session for a mailbox + folder (+ optional
// search query). Any previous session for the mailbox is superseded:
// its in-flight responses are discarded on arrival and its selection
// set is gone.
func (m *Manager) Select(mailboxID string, folder provider.FolderRef, query string) (*Session, error) {
	e, err := m.entryFor(mailboxID)
	if err != nil {
		return nil, err
	}

	s := newSession(m, e, folder, query, m.pageSize)

	m.mu.Lock()
	m.sessions[mailboxID] = s
	m.mu.Unlock()

	return s, nil
}

// Session returns the current browse session for a mailbox, or nil.
func (m *Manager) Session(mailboxID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[mailboxID]
}

// current reports whether s is still the mailbox's active session.
// Responses arriving for superseded sessions are discarded.
func (m *Manager) current(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[s.entry.mailbox.ID] == s
}

// Adapter exposes the adapter for a mailbox, for operations that need
// no session context (send, drafts, attachments).
func (m *Manager) Adapter(mailboxID string) (provider.Adapter, error) {
	e, err := m.entryFor(mailboxID)
	if err != nil {
		return nil, err
	}
	return e.adapter, nil
}

// Do runs fn against a mailbox's adapter with the auth-retry policy
// applied.
func (m *Manager) Do(ctx context.Context, mailboxID string, fn func(provider.Adapter) error) error {
	e, err := m.entryFor(mailboxID)
	if err != nil {
		return err
	}
	return m.withAuthRetry(ctx, e.adapter, func() error { return fn(e.adapter) })
}

// withAuthRetry retries fn once after a token refresh when the
// adapter's provider supports refresh. Credential-based adapters
// surface AuthExpired immediately; everything else surfaces with no
// retry at all.
func (m *Manager) withAuthRetry(ctx context.Context, adapter provider.Adapter, fn func() error) error {
	err := fn()
	if err == nil || !provider.IsAuthExpired(err) {
		return err
	}

	refresher, ok := adapter.(provider.TokenRefresher)
	if !ok {
		return err
	}

	m.logger.WithField("provider", adapter.Kind()).Info("Auth expired, refreshing token")
	if rerr := refresher.RefreshToken(ctx); rerr != nil {
		return err
	}
	return fn()
}

// Disconnect tears a mailbox down: the adapter session ends, its
// browse session is dropped, and its specific cache entry is cleared.
// The collective entry stays for future mailboxes of the kind.
func (m *Manager) Disconnect(ctx context.Context, mailboxID string) error {
	e, err := m.entryFor(mailboxID)
	if err != nil {
		return err
	}

	if derr := e.adapter.Disconnect(ctx); derr != nil {
		m.logger.WithError(derr).WithField("mailbox", mailboxID).Warn("Adapter disconnect failed")
	}
	if cerr := m.store.Clear(mailboxID); cerr != nil {
		m.logger.WithError(cerr).WithField("mailbox", mailboxID).Warn("Failed to clear cache entry")
	}

	m.mu.Lock()
	delete(m.sessions, mailboxID)
	delete(m.entries, mailboxID)
	m.mu.Unlock()
	return nil
}

// Close disconnects every adapter.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if err := e.adapter.Disconnect(context.Background()); err != nil {
			m.logger.WithError(err).WithField("mailbox", id).Warn("Adapter disconnect failed")
		}
	}
	return nil
}
