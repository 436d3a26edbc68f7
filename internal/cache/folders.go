package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/unibox/pkg/types"
)

// payloadVersion prefixes every cache key. Bumping it abandons entries
// written under older payload shapes instead of trying to migrate
// them.
const payloadVersion = "v2"

// FolderStore is the persistent folder cache contract. Read never
// fails: a missing, corrupt, or unreadable entry degrades through the
// precedence chain (mailbox-specific entry, provider-collective
// entry, built-in template) and the caller always gets a folder list.
type FolderStore interface {
	Read(kind types.ProviderKind, mailboxID string) []types.Folder
	Write(kind types.ProviderKind, mailboxID string, folders []types.Folder) error
	Clear(mailboxID string) error
}

// Store implements FolderStore on the SQLite substrate.
type Store struct {
	cache  *Cache
	logger *logrus.Logger
}

// NewStore creates a new store instance.
func NewStore(cache *Cache, logger *logrus.Logger) *Store {
	return &Store{
		cache:  cache,
		logger: logger,
	}
}

func mailboxKey(mailboxID string) string {
	return payloadVersion + "/mailbox/" + mailboxID
}

func providerKey(kind types.ProviderKind) string {
	return payloadVersion + "/provider/" + string(kind)
}

// Read returns the cached folder list for a mailbox, falling back to
// the provider-collective entry and finally the built-in template.
func (s *Store) Read(kind types.ProviderKind, mailboxID string) []types.Folder {
	if folders, ok := s.load(mailboxKey(mailboxID)); ok {
		return folders
	}
	if folders, ok := s.load(providerKey(kind)); ok {
		return folders
	}
	return Template(kind)
}

// Write stores the mailbox-specific entry verbatim and refreshes the
// provider-collective entry with a copy whose unread counts are
// forced to zero, recursively, so a later mailbox of the same
// provider gets the folder shape without another mailbox's unread
// state.
func (s *Store) Write(kind types.ProviderKind, mailboxID string, folders []types.Folder) error {
	if err := s.store(mailboxKey(mailboxID), folders); err != nil {
		return fmt.Errorf("failed to write mailbox cache entry: %w", err)
	}
	if err := s.store(providerKey(kind), StripUnread(folders)); err != nil {
		return fmt.Errorf("failed to write collective cache entry: %w", err)
	}
	return nil
}

// Clear removes the mailbox-specific entry (on disconnect). The
// collective entry is left in place.
func (s *Store) Clear(mailboxID string) error {
	if _, err := s.cache.DB().Exec("DELETE FROM folder_cache WHERE key = ?", mailboxKey(mailboxID)); err != nil {
		return fmt.Errorf("failed to clear cache entry: %w", err)
	}
	return nil
}

// load reads and decodes one entry. Any failure is treated as a cache
// miss; corruption is logged and never surfaces to the caller.
func (s *Store) load(key string) ([]types.Folder, bool) {
	var payload string
	err := s.cache.DB().QueryRow("SELECT payload FROM folder_cache WHERE key = ?", key).Scan(&payload)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.WithError(err).WithField("key", key).Warn("Failed to read cache entry, treating as miss")
		}
		return nil, false
	}

	var folders []types.Folder
	if err := json.Unmarshal([]byte(payload), &folders); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Corrupt cache entry, treating as miss")
		return nil, false
	}
	return folders, true
}

func (s *Store) store(key string, folders []types.Folder) error {
	payload, err := json.Marshal(folders)
	if err != nil {
		return fmt.Errorf("failed to marshal folders: %w", err)
	}

	query := `
		INSERT INTO folder_cache (key, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.cache.DB().Exec(query, key, string(payload)); err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// StripUnread deep-copies a folder list with every unread count forced
// to zero, recursing through child folders.
func StripUnread(folders []types.Folder) []types.Folder {
	if len(folders) == 0 {
		return nil
	}
	out := make([]types.Folder, len(folders))
	for i, f := range folders {
		f.UnreadCount = 0
		f.Children = StripUnread(f.Children)
		out[i] = f
	}
	return out
}
