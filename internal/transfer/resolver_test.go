package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinarwallet/wallet/internal/clock"
	"github.com/dinarwallet/wallet/internal/model"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	matches []model.UserMatch
	err     error
	hook    func(q string)
}

func (s *fakeSearcher) SearchUsers(_ context.Context, q string) ([]model.UserMatch, error) {
	if s.hook != nil {
		s.hook(q)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	return s.matches, s.err
}

func (s *fakeSearcher) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func newResolver(s Searcher, opts ...ResolverOption) (*Resolver, *clock.Manual) {
	clk := clock.NewManual(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC))
	return NewResolver(s, append([]ResolverOption{WithResolverClock(clk)}, opts...)...), clk
}

func TestResolver_DebouncesToOneCall(t *testing.T) {
	s := &fakeSearcher{matches: []model.UserMatch{{Email: "sara@example.dz"}}}
	r, clk := newResolver(s)
	defer r.Close()

	for _, q := range []string{"s", "sa", "sar", "sara"} {
		r.Update(q)
		clk.Advance(100 * time.Millisecond)
	}
	assert.Empty(t, s.calls())

	clk.Advance(199 * time.Millisecond)
	assert.Empty(t, s.calls())
	clk.Advance(time.Millisecond)
	assert.Equal(t, []string{"sara"}, s.calls())
	assert.Len(t, r.Results(), 1)
}

func TestResolver_ShortQueryClearsWithoutCall(t *testing.T) {
	s := &fakeSearcher{matches: []model.UserMatch{{Email: "sara@example.dz"}}}
	r, clk := newResolver(s)

	r.Update("sara")
	clk.Advance(DefaultDebounce)
	require.Len(t, r.Results(), 1)

	r.Update(" s ")
	assert.Empty(t, r.Results(), "cleared synchronously")
	clk.Advance(time.Second)
	assert.Len(t, s.calls(), 1)
}

func TestResolver_TrimsQuery(t *testing.T) {
	s := &fakeSearcher{}
	r, clk := newResolver(s)
	r.Update("  7001  ")
	clk.Advance(DefaultDebounce)
	assert.Equal(t, []string{"7001"}, s.calls())
}

func TestResolver_DropsSupersededResults(t *testing.T) {
	s := &fakeSearcher{matches: []model.UserMatch{{Email: "old@example.dz"}}}
	r, clk := newResolver(s)
	// The user keeps typing while the first search is in flight.
	s.hook = func(q string) {
		if q == "ol" {
			r.Update("x")
		}
	}
	r.Update("ol")
	clk.Advance(DefaultDebounce)
	assert.Equal(t, []string{"ol"}, s.calls())
	assert.Empty(t, r.Results())
}

func TestResolver_SelectSuppressesSearch(t *testing.T) {
	s := &fakeSearcher{}
	r, clk := newResolver(s)

	r.Update("sar")
	r.Select(model.UserMatch{Email: "sara@example.dz", FullName: "Sara"})
	clk.Advance(time.Second)
	assert.Empty(t, s.calls(), "pending search discarded")

	r.Update("sara@example.dz")
	clk.Advance(time.Second)
	assert.Empty(t, s.calls())
	_, ok := r.Selected()
	assert.True(t, ok)

	r.Update("sara@example")
	_, ok = r.Selected()
	assert.False(t, ok)
	clk.Advance(DefaultDebounce)
	assert.Equal(t, []string{"sara@example"}, s.calls())
}

func TestResolver_Flush(t *testing.T) {
	s := &fakeSearcher{err: errors.New("unavailable")}
	r, clk := newResolver(s)

	assert.NoError(t, r.Flush(context.Background()), "nothing pending")

	r.Update("yacine")
	err := r.Flush(context.Background())
	assert.EqualError(t, err, "unavailable")
	assert.EqualError(t, r.Err(), "unavailable")
	assert.Zero(t, clk.Pending())

	clk.Advance(time.Second)
	assert.Len(t, s.calls(), 1)
}

func TestResolver_OnResultsAndClose(t *testing.T) {
	s := &fakeSearcher{matches: []model.UserMatch{{Email: "a@example.dz"}, {Email: "b@example.dz"}}}
	var seen int
	r, clk := newResolver(s, OnResults(func(m []model.UserMatch) { seen = len(m) }), WithDebounce(time.Second))

	r.Update("ab")
	clk.Advance(time.Second)
	assert.Equal(t, 2, seen)

	r.Update("abc")
	r.Close()
	clk.Advance(time.Second)
	assert.Len(t, s.calls(), 1)

	r.Update("abcd")
	assert.Zero(t, clk.Pending())
}
