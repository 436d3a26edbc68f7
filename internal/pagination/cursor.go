package pagination

import (
	"context"
	"fmt"

	"github.com/brandon/unibox/internal/provider"
	"github.com/brandon/unibox/pkg/types"
)

// State is the cursor lifecycle state. Loading (initial fetch, nothing
// to show yet) and FetchingNext (advancing past cached pages) are
// distinct so callers can render them differently.
type State string

const (
	StateIdle         State = "idle"
	StateLoading      State = "loading"
	StateFetchingNext State = "fetching_next"
	StateReady        State = "ready"
)

// Fetcher issues one adapter list/search call for the given page
// request.
type Fetcher func(ctx context.Context, req provider.PageRequest) (*types.MessagePage, error)

// Cursor presents one page-navigation contract over either pagination
// primitive. Page N+1 is only ever requested once page N's token (or
// count) is known; previously fetched pages are served from the page
// cache without a network call.
//
// A Cursor is not safe for concurrent use; the owning session
// serializes access.
type Cursor struct {
	kind     provider.PaginationKind
	pageSize int
	fetch    Fetcher

	state    State
	current  int
	frontier int // highest page fetched so far
	pages    map[int]*types.MessagePage
	tokens   map[int]string // cursor kind: token that requests page n
	total    int
	tailNext bool // provider signal: more data past the frontier
}

// NewCursor creates a cursor at page 1 with nothing fetched.
func NewCursor(kind provider.PaginationKind, pageSize int, fetch Fetcher) *Cursor {
	if pageSize < 1 {
		pageSize = 25
	}
	return &Cursor{
		kind:     kind,
		pageSize: pageSize,
		fetch:    fetch,
		state:    StateIdle,
		current:  1,
		pages:    make(map[int]*types.MessagePage),
		tokens:   map[int]string{1: ""},
		total:    -1,
	}
}

// Start fetches page 1. Calling Start again re-fetches it, replacing
// the page cache (used for explicit refresh).
func (c *Cursor) Start(ctx context.Context) (*types.MessagePage, error) {
	c.state = StateLoading
	page, err := c.fetch(ctx, c.request(1))
	if err != nil {
		c.state = StateIdle
		return nil, err
	}

	c.pages = map[int]*types.MessagePage{1: page}
	c.tokens = map[int]string{1: ""}
	c.current = 1
	c.frontier = 1
	c.commit(1, page)
	c.state = StateReady
	return page, nil
}

// FetchNext advances to the next page. When the next page is already
// in the page cache it is served without a network call. When no next
// page exists the call is a no-op returning the current page.
func (c *Cursor) FetchNext(ctx context.Context) (*types.MessagePage, error) {
	if c.frontier == 0 {
		return nil, fmt.Errorf("cursor not started")
	}
	if !c.HasNext() {
		return c.pages[c.current], nil
	}

	next := c.current + 1
	if page, ok := c.pages[next]; ok {
		c.current = next
		return page, nil
	}

	c.state = StateFetchingNext
	page, err := c.fetch(ctx, c.request(next))
	if err != nil {
		c.state = StateReady
		return nil, err
	}

	c.current = next
	c.frontier = next
	c.pages[next] = page
	c.commit(next, page)
	c.state = StateReady
	return page, nil
}

// Prev moves back one page, served from the page cache. It reports
// false (and stays put) at page 1.
func (c *Cursor) Prev() (*types.MessagePage, bool) {
	if c.current <= 1 {
		return c.pages[c.current], false
	}
	c.current--
	return c.pages[c.current], true
}

// commit records the pagination signals page N produced.
func (c *Cursor) commit(n int, page *types.MessagePage) {
	switch c.kind {
	case provider.PaginationCursor:
		c.tokens[n+1] = page.NextToken
		c.tailNext = page.NextToken != "" && page.HasMore
		if page.TotalCount >= 0 {
			c.total = page.TotalCount
		}
	case provider.PaginationPaged:
		c.total = page.TotalCount
		c.tailNext = n*c.pageSize < c.total
	}
}

func (c *Cursor) request(page int) provider.PageRequest {
	req := provider.PageRequest{Page: page, PageSize: c.pageSize}
	if c.kind == provider.PaginationCursor {
		req.Token = c.tokens[page]
	}
	return req
}

// DropMessage removes the message with the given identity from every
// cached page, so revisiting a page after a delete or move does not
// resurrect it. The affected page gets a fresh slice; other cached
// pages keep theirs.
func (c *Cursor) DropMessage(id string) {
	for _, page := range c.pages {
		for i := range page.Messages {
			if page.Messages[i].Identity == id {
				trimmed := make([]types.Message, 0, len(page.Messages)-1)
				trimmed = append(trimmed, page.Messages[:i]...)
				trimmed = append(trimmed, page.Messages[i+1:]...)
				page.Messages = trimmed
				break
			}
		}
	}
}

// CurrentPage returns the 1-based page index.
func (c *Cursor) CurrentPage() int { return c.current }

// Page returns the currently displayed page, or nil before Start.
func (c *Cursor) Page() *types.MessagePage { return c.pages[c.current] }

// HasNext reports whether a next page exists: either it is already
// cached behind the frontier, or the provider signalled more data.
func (c *Cursor) HasNext() bool {
	if _, ok := c.pages[c.current+1]; ok {
		return true
	}
	return c.current == c.frontier && c.tailNext
}

// HasPrev reports whether the cursor can move back.
func (c *Cursor) HasPrev() bool { return c.current > 1 }

// State returns the cursor lifecycle state.
func (c *Cursor) State() State { return c.state }

// TotalCount returns the provider's total/estimate, or -1 when the
// provider has not reported one.
func (c *Cursor) TotalCount() int { return c.total }
