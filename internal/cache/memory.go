package cache

import (
	"sync"

	"github.com/brandon/unibox/pkg/types"
)

// MemoryStore is an in-memory FolderStore used in tests and as a
// no-op substrate when no cache path is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]types.Folder
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]types.Folder)}
}

// Read follows the same precedence chain as the SQLite store.
func (m *MemoryStore) Read(kind types.ProviderKind, mailboxID string) []types.Folder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if folders, ok := m.entries[mailboxKey(mailboxID)]; ok {
		return folders
	}
	if folders, ok := m.entries[providerKey(kind)]; ok {
		return folders
	}
	return Template(kind)
}

// Write stores the specific entry verbatim and a stripped collective
// copy.
func (m *MemoryStore) Write(kind types.ProviderKind, mailboxID string, folders []types.Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[mailboxKey(mailboxID)] = folders
	m.entries[providerKey(kind)] = StripUnread(folders)
	return nil
}

// Clear removes the mailbox-specific entry.
func (m *MemoryStore) Clear(mailboxID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, mailboxKey(mailboxID))
	return nil
}
