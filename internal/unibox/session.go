package unibox

import (
	"context"
	"errors"

	"github.com/brandon/unibox/internal/filter"
	"github.com/brandon/unibox/internal/pagination"
	"github.com/brandon/unibox/internal/provider"
	"github.com/brandon/unibox/pkg/types"
)

// ErrSuperseded is returned when a fetch completes after its session
// was replaced by a later Select; the stale result is discarded and
// must not be rendered.
var ErrSuperseded = errors.New("browse session superseded")

// Session is one mailbox + folder (+ optional search query) browse
// context. Switching folder or query always creates a fresh session,
// which resets the cursor to page 1 and clears the selection set.
//
// Sessions follow the single-flight UI model: the caller serializes
// operations on one session.
type Session struct {
	mgr      *Manager
	entry    *entry
	folder   provider.FolderRef
	query    string
	cursor   *pagination.Cursor
	criteria filter.Criteria
	selected map[string]struct{}
	messages []types.Message
}

func newSession(mgr *Manager, e *entry, folder provider.FolderRef, query string, pageSize int) *Session {
	s := &Session{
		mgr:      mgr,
		entry:    e,
		folder:   folder,
		query:    query,
		selected: make(map[string]struct{}),
	}
	s.cursor = pagination.NewCursor(e.adapter.Pagination(), pageSize, s.fetch)
	return s
}

// fetch issues the adapter call backing this session: the folder
// listing normally, the server-side search when a query is set. Only
// the folder's own listing is ever issued; the other canonical views
// stay inert.
func (s *Session) fetch(ctx context.Context, req provider.PageRequest) (*types.MessagePage, error) {
	var page *types.MessagePage
	err := s.mgr.withAuthRetry(ctx, s.entry.adapter, func() error {
		var ferr error
		if s.query != "" {
			page, ferr = s.entry.adapter.Search(ctx, s.query, req)
		} else {
			page, ferr = s.entry.adapter.ListByFolder(ctx, s.folder, req)
		}
		return ferr
	})
	return page, err
}

// Start runs the initial page-1 fetch. A result arriving after the
// session was superseded is discarded.
func (s *Session) Start(ctx context.Context) error {
	page, err := s.cursor.Start(ctx)
	if err != nil {
		return err
	}
	return s.commit(page)
}

// FetchNext advances one page, a no-op at the last page. Previously
// fetched pages are served from the page cache without a network
// call.
func (s *Session) FetchNext(ctx context.Context) error {
	page, err := s.cursor.FetchNext(ctx)
	if err != nil {
		return err
	}
	return s.commit(page)
}

// Prev steps back one page from the page cache.
func (s *Session) Prev() error {
	page, moved := s.cursor.Prev()
	if !moved {
		return nil
	}
	return s.commit(page)
}

func (s *Session) commit(page *types.MessagePage) error {
	if !s.mgr.current(s) {
		s.mgr.logger.WithField("mailbox", s.entry.mailbox.ID).Debug("Discarding stale page result")
		return ErrSuperseded
	}
	if page != nil {
		s.messages = page.Messages
	}
	return nil
}

// SetCriteria replaces the client-side filter criteria. Filtering is
// pure; the fetched page is untouched.
func (s *Session) SetCriteria(c filter.Criteria) {
	s.criteria = c
}

// Messages returns the current page narrowed by the filter criteria,
// order preserved.
func (s *Session) Messages() []types.Message {
	return filter.Apply(s.messages, s.criteria)
}

// Cursor exposes the pagination state for rendering.
func (s *Session) Cursor() *pagination.Cursor { return s.cursor }

// Folder returns the session's folder reference.
func (s *Session) Folder() provider.FolderRef { return s.folder }

// ToggleSelect adds or removes a message from the selection set. Only
// messages with a durable identity are selectable.
func (s *Session) ToggleSelect(id string) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
	}
	return nil
}

// Selected returns the selected identities.
func (s *Session) Selected() []string {
	out := make([]string, 0, len(s.selected))
	for id := range s.selected {
		out = append(out, id)
	}
	return out
}

// ClearSelection empties the selection set.
func (s *Session) ClearSelection() {
	s.selected = make(map[string]struct{})
}

// SetRead toggles the read flag optimistically: the local page is
// updated first and reverted if the adapter call fails.
func (s *Session) SetRead(ctx context.Context, id string, read bool) error {
	if err := requireIdentity(id); err != nil {
		return err
	}

	prev := s.patch(id, func(m *types.Message) { m.IsRead = read })
	err := s.mgr.withAuthRetry(ctx, s.entry.adapter, func() error {
		return s.entry.adapter.SetRead(ctx, id, read)
	})
	if err != nil && prev != nil {
		s.patch(id, func(m *types.Message) { *m = *prev })
	}
	return err
}

// SetStarred toggles the starred flag optimistically, with revert on
// failure.
func (s *Session) SetStarred(ctx context.Context, id string, starred bool) error {
	if err := requireIdentity(id); err != nil {
		return err
	}

	prev := s.patch(id, func(m *types.Message) { m.IsStarred = starred })
	err := s.mgr.withAuthRetry(ctx, s.entry.adapter, func() error {
		return s.entry.adapter.SetStarred(ctx, id, starred)
	})
	if err != nil && prev != nil {
		s.patch(id, func(m *types.Message) { *m = *prev })
	}
	return err
}

// Delete removes a message, dropping it from the local page and the
// selection set on success.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := requireIdentity(id); err != nil {
		return err
	}

	err := s.mgr.withAuthRetry(ctx, s.entry.adapter, func() error {
		return s.entry.adapter.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.remove(id)
	delete(s.selected, id)
	return nil
}

// Move relocates a message to another folder.
func (s *Session) Move(ctx context.Context, id string, target provider.FolderRef) error {
	if err := requireIdentity(id); err != nil {
		return err
	}

	err := s.mgr.withAuthRetry(ctx, s.entry.adapter, func() error {
		return s.entry.adapter.Move(ctx, id, target)
	})
	if err != nil {
		return err
	}

	s.remove(id)
	delete(s.selected, id)
	return nil
}

// BatchOperate applies one operation to the whole selection set, then
// clears it.
func (s *Session) BatchOperate(ctx context.Context, op provider.BatchOp) error {
	ids := s.Selected()
	if len(ids) == 0 {
		return nil
	}

	err := s.mgr.withAuthRetry(ctx, s.entry.adapter, func() error {
		return s.entry.adapter.BatchOperate(ctx, ids, op)
	})
	if err != nil {
		return err
	}

	s.ClearSelection()
	return nil
}

// patch applies fn to the message with the given identity on the
// current page, returning a copy of the previous value, or nil when
// the message is not on the page.
func (s *Session) patch(id string, fn func(*types.Message)) *types.Message {
	for i := range s.messages {
		if s.messages[i].Identity == id {
			prev := s.messages[i]
			fn(&s.messages[i])
			return &prev
		}
	}
	return nil
}

// remove drops the message from the cursor's cached pages and
// refreshes the local view from the current page.
func (s *Session) remove(id string) {
	s.cursor.DropMessage(id)
	if page := s.cursor.Page(); page != nil {
		s.messages = page.Messages
	}
}

// requireIdentity blocks mutations whose target has no durable
// identity, before any network call is made.
func requireIdentity(id string) error {
	if id == "" {
		return &provider.InvalidIdentifierError{DisplayKey: "(unresolved)"}
	}
	return nil
}
