package cache

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/unibox/pkg/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testStore(t *testing.T) *Store {
	t.Helper()
	c, err := NewCache(filepath.Join(t.TempDir(), "cache.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return NewStore(c, testLogger())
}

func sampleFolders() []types.Folder {
	return []types.Folder{
		{RawID: "INBOX", RawName: "Inbox", Category: types.CategoryInbox, UnreadCount: 7},
		{RawID: "SENT", RawName: "Sent", Category: types.CategorySent},
		{
			RawID: "Label_1", RawName: "Work", Category: types.CategoryUnknown, UnreadCount: 2,
			Children: []types.Folder{
				{RawID: "Label_2", RawName: "Work/Reports", Category: types.CategoryUnknown, UnreadCount: 3},
			},
		},
	}
}

func TestReadFallsBackToTemplate(t *testing.T) {
	s := testStore(t)

	// Nothing written: a brand new mailbox still gets a renderable
	// skeleton with all-zero unread counts.
	folders := s.Read(types.ProviderIMAP, "m-new")
	require.NotEmpty(t, folders)
	assert.Equal(t, Template(types.ProviderIMAP), folders)
	for _, f := range folders {
		assert.Zero(t, f.UnreadCount)
	}
}

func TestWriteThenReadSpecific(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Write(types.ProviderGmail, "m1", sampleFolders()))

	folders := s.Read(types.ProviderGmail, "m1")
	require.Len(t, folders, 3)
	assert.Equal(t, 7, folders[0].UnreadCount)
	assert.Equal(t, 3, folders[2].Children[0].UnreadCount)
}

func TestCollectiveEntryStripsUnread(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Write(types.ProviderGmail, "m1", sampleFolders()))

	// A second mailbox of the same provider inherits the folder shape
	// through the collective entry, but never m1's unread state.
	folders := s.Read(types.ProviderGmail, "m2")
	require.Len(t, folders, 3)
	assert.Equal(t, "INBOX", folders[0].RawID)
	assert.Zero(t, folders[0].UnreadCount)
	assert.Zero(t, folders[2].UnreadCount)
	require.Len(t, folders[2].Children, 1)
	assert.Zero(t, folders[2].Children[0].UnreadCount)

	// The specific entry is untouched.
	assert.Equal(t, 7, s.Read(types.ProviderGmail, "m1")[0].UnreadCount)
}

func TestCollectiveIsPerProvider(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Write(types.ProviderGmail, "m1", sampleFolders()))

	// A different provider's mailbox never sees another provider's
	// collective entry.
	folders := s.Read(types.ProviderGraph, "m3")
	assert.Equal(t, Template(types.ProviderGraph), folders)
}

func TestClearRemovesSpecificOnly(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Write(types.ProviderGmail, "m1", sampleFolders()))
	require.NoError(t, s.Clear("m1"))

	// m1 now falls through to the collective entry, unread stripped.
	folders := s.Read(types.ProviderGmail, "m1")
	require.Len(t, folders, 3)
	assert.Zero(t, folders[0].UnreadCount)
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Write(types.ProviderGmail, "m1", sampleFolders()))

	// Corrupt the specific entry on disk; Read degrades through the
	// chain instead of failing.
	_, err := s.cache.DB().Exec(
		"UPDATE folder_cache SET payload = ? WHERE key = ?",
		"{not json", mailboxKey("m1"),
	)
	require.NoError(t, err)

	folders := s.Read(types.ProviderGmail, "m1")
	require.Len(t, folders, 3, "collective entry still serves")
	assert.Zero(t, folders[0].UnreadCount)
}

func TestLastWriteWins(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Write(types.ProviderGmail, "m1", sampleFolders()))
	updated := []types.Folder{
		{RawID: "INBOX", RawName: "Inbox", Category: types.CategoryInbox, UnreadCount: 1},
	}
	require.NoError(t, s.Write(types.ProviderGmail, "m1", updated))

	folders := s.Read(types.ProviderGmail, "m1")
	require.Len(t, folders, 1)
	assert.Equal(t, 1, folders[0].UnreadCount)
}

func TestStripUnread(t *testing.T) {
	assert.Nil(t, StripUnread(nil))

	in := sampleFolders()
	out := StripUnread(in)
	assert.Zero(t, out[0].UnreadCount)
	assert.Zero(t, out[2].UnreadCount)
	assert.Zero(t, out[2].Children[0].UnreadCount)

	// Deep copy: the input keeps its counts.
	assert.Equal(t, 7, in[0].UnreadCount)
	assert.Equal(t, 3, in[2].Children[0].UnreadCount)
}

func TestMemoryStoreSamePrecedence(t *testing.T) {
	m := NewMemoryStore()

	assert.Equal(t, Template(types.ProviderGraph), m.Read(types.ProviderGraph, "m1"))

	require.NoError(t, m.Write(types.ProviderGraph, "m1", sampleFolders()))
	assert.Equal(t, 7, m.Read(types.ProviderGraph, "m1")[0].UnreadCount)
	assert.Zero(t, m.Read(types.ProviderGraph, "m2")[0].UnreadCount)

	require.NoError(t, m.Clear("m1"))
	assert.Zero(t, m.Read(types.ProviderGraph, "m1")[0].UnreadCount)
}
