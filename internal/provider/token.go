package provider

import (
	"sync"

	"golang.org/x/oauth2"
)

// RenewableTokenSource wraps an oauth2 token source so the cached
// access token can be discarded on demand. The standard reuse source
// only refreshes once the token expires by wall clock; when the
// server rejects a locally valid token, Renew forces the next Token
// call back through the token endpoint.
type RenewableTokenSource struct {
	mu   sync.Mutex
	mint func() oauth2.TokenSource
	cur  oauth2.TokenSource
}

// NewRenewableTokenSource builds the source. mint must return a fresh
// caching source on every call.
func NewRenewableTokenSource(mint func() oauth2.TokenSource) *RenewableTokenSource {
	return &RenewableTokenSource{mint: mint, cur: mint()}
}

// Token returns the current access token, fetching one if needed.
func (s *RenewableTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	return cur.Token()
}

// Renew discards the cached access token; the next Token call mints a
// fresh source and hits the token endpoint again.
func (s *RenewableTokenSource) Renew() {
	s.mu.Lock()
	s.cur = s.mint()
	s.mu.Unlock()
}
