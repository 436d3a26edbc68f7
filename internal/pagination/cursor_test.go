package pagination

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/unibox/internal/provider"
	"github.com/brandon/unibox/pkg/types"
)

// cursorBackend simulates an opaque-token provider: each page carries
// the token requesting the next one plus a total estimate.
type cursorBackend struct {
	pages  int
	total  int
	calls  int
	tokens []string // tokens observed in requests
}

func (b *cursorBackend) fetch(_ context.Context, req provider.PageRequest) (*types.MessagePage, error) {
	b.calls++
	b.tokens = append(b.tokens, req.Token)

	// The token encodes the page number; empty means page 1.
	n := 1
	if req.Token != "" {
		n, _ = strconv.Atoi(req.Token)
	}

	page := &types.MessagePage{
		Messages:   []types.Message{{Identity: "p" + strconv.Itoa(n)}},
		TotalCount: b.total,
	}
	if n < b.pages {
		page.NextToken = strconv.Itoa(n + 1)
		page.HasMore = true
	}
	return page, nil
}

// pagedBackend simulates numeric page/pageSize with an exact total.
type pagedBackend struct {
	total int
	calls int
}

func (b *pagedBackend) fetch(_ context.Context, req provider.PageRequest) (*types.MessagePage, error) {
	b.calls++
	count := req.PageSize
	if remaining := b.total - (req.Page-1)*req.PageSize; remaining < count {
		count = remaining
	}
	msgs := make([]types.Message, 0, count)
	for i := 0; i < count; i++ {
		msgs = append(msgs, types.Message{Identity: strconv.Itoa((req.Page-1)*req.PageSize + i)})
	}
	return &types.MessagePage{
		Messages:   msgs,
		TotalCount: b.total,
		HasMore:    req.Page*req.PageSize < b.total,
	}, nil
}

func TestCursorBeforeStart(t *testing.T) {
	c := NewCursor(provider.PaginationCursor, 10, nil)
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Page())
	_, err := c.FetchNext(context.Background())
	assert.Error(t, err)
}

func TestCursorTokenFlow(t *testing.T) {
	b := &cursorBackend{pages: 3, total: -1}
	c := NewCursor(provider.PaginationCursor, 10, b.fetch)
	ctx := context.Background()

	page, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p1", page.Messages[0].Identity)
	assert.Equal(t, 1, c.CurrentPage())
	assert.True(t, c.HasNext())
	assert.False(t, c.HasPrev())
	assert.Equal(t, StateReady, c.State())

	page, err = c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p2", page.Messages[0].Identity)

	page, err = c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p3", page.Messages[0].Identity)
	assert.False(t, c.HasNext())

	// Page N+1 was always requested with the token page N produced.
	assert.Equal(t, []string{"", "2", "3"}, b.tokens)
}

func TestCursorNoopAtLastPage(t *testing.T) {
	b := &cursorBackend{pages: 1, total: -1}
	c := NewCursor(provider.PaginationCursor, 10, b.fetch)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	assert.False(t, c.HasNext())

	// Advancing past the end never moves and never calls the backend.
	for i := 0; i < 3; i++ {
		page, err := c.FetchNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, c.CurrentPage())
		assert.Equal(t, "p1", page.Messages[0].Identity)
	}
	assert.Equal(t, 1, b.calls)
}

func TestCursorPageCacheIdempotence(t *testing.T) {
	b := &cursorBackend{pages: 3, total: 60}
	c := NewCursor(provider.PaginationCursor, 10, b.fetch)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	_, err = c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, b.calls)

	// Back to page 1, then forward again: both served from the cache.
	page, moved := c.Prev()
	assert.True(t, moved)
	assert.Equal(t, "p1", page.Messages[0].Identity)
	assert.True(t, c.HasNext())

	page, err = c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p2", page.Messages[0].Identity)
	assert.Equal(t, 2, b.calls, "cached page must not refetch")

	// The frontier is remembered: the provider's last signal still
	// drives HasNext at the frontier page.
	assert.True(t, c.HasNext())
}

func TestDropMessageRewritesCachedPage(t *testing.T) {
	b := &pagedBackend{total: 4}
	c := NewCursor(provider.PaginationPaged, 3, b.fetch)
	ctx := context.Background()

	page, err := c.Start(ctx)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)

	c.DropMessage("0")

	// Revisit page 1 after moving away: the dropped slot must be
	// gone, not duplicated at the tail.
	_, err = c.FetchNext(ctx)
	require.NoError(t, err)
	page, moved := c.Prev()
	require.True(t, moved)

	ids := make([]string, 0, len(page.Messages))
	for _, m := range page.Messages {
		ids = append(ids, m.Identity)
	}
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Equal(t, 2, b.calls, "drop must not invalidate the cache")
}

func TestCursorTotalEstimate(t *testing.T) {
	b := &cursorBackend{pages: 2, total: 37}
	c := NewCursor(provider.PaginationCursor, 10, b.fetch)

	_, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 37, c.TotalCount())
}

func TestCursorPrevAtFirstPage(t *testing.T) {
	b := &cursorBackend{pages: 2, total: -1}
	c := NewCursor(provider.PaginationCursor, 10, b.fetch)

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	page, moved := c.Prev()
	assert.False(t, moved)
	assert.Equal(t, 1, c.CurrentPage())
	assert.Equal(t, "p1", page.Messages[0].Identity)
}

func TestCursorFetchError(t *testing.T) {
	wantErr := errors.New("boom")
	fail := func(context.Context, provider.PageRequest) (*types.MessagePage, error) {
		return nil, wantErr
	}
	c := NewCursor(provider.PaginationCursor, 10, fail)

	_, err := c.Start(context.Background())
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, StateIdle, c.State())
}

func TestPagedArithmetic(t *testing.T) {
	b := &pagedBackend{total: 25}
	c := NewCursor(provider.PaginationPaged, 10, b.fetch)
	ctx := context.Background()

	page, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 10)
	assert.Equal(t, 25, c.TotalCount())
	assert.True(t, c.HasNext())

	_, err = c.FetchNext(ctx)
	require.NoError(t, err)
	assert.True(t, c.HasNext(), "2*10 < 25")

	page, err = c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 5)
	assert.False(t, c.HasNext(), "3*10 >= 25")

	// Still a no-op past the end.
	_, err = c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, c.CurrentPage())
	assert.Equal(t, 3, b.calls)
}

func TestStartResetsPageCache(t *testing.T) {
	b := &cursorBackend{pages: 3, total: -1}
	c := NewCursor(provider.PaginationCursor, 10, b.fetch)
	ctx := context.Background()

	_, err := c.Start(ctx)
	require.NoError(t, err)
	_, err = c.FetchNext(ctx)
	require.NoError(t, err)

	_, err = c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.CurrentPage())

	// Page 2 must be refetched after the reset.
	_, err = c.FetchNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, b.calls)
}
