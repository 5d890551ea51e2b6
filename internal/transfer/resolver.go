package transfer

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dinarwallet/wallet/internal/clock"
	"github.com/dinarwallet/wallet/internal/model"
)

// MinQueryLength is the shortest trimmed query that triggers a search.
const MinQueryLength = 2

// DefaultDebounce is how long the query must stay unchanged before a search.
const DefaultDebounce = 300 * time.Millisecond

// Searcher finds candidate recipients. *wallet.Session satisfies it.
type Searcher interface {
	SearchUsers(ctx context.Context, query string) ([]model.UserMatch, error)
}

// Resolver turns recipient keystrokes into at most one search per quiet
// period. Results of a superseded query are dropped.
type Resolver struct {
	search   Searcher
	clock    clock.Clock
	debounce time.Duration
	timeout  time.Duration
	log      *slog.Logger
	notify   func([]model.UserMatch)

	mu       sync.Mutex
	query    string
	results  []model.UserMatch
	selected *model.UserMatch
	err      error
	seq      uint64
	pending  clock.Timer
	closed   bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDebounce sets the quiet period before a search is sent.
func WithDebounce(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.debounce = d }
}

// WithResolverClock replaces the wall clock.
func WithResolverClock(c clock.Clock) ResolverOption {
	return func(r *Resolver) { r.clock = c }
}

// WithResolverLogger sets the logger for failed searches.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.log = l }
}

// WithSearchTimeout bounds each debounced search call.
func WithSearchTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// OnResults registers a callback invoked with every accepted result set.
func OnResults(fn func([]model.UserMatch)) ResolverOption {
	return func(r *Resolver) { r.notify = fn }
}

// NewResolver returns a Resolver searching through s.
func NewResolver(s Searcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		search:   s,
		clock:    clock.Real{},
		debounce: DefaultDebounce,
		timeout:  10 * time.Second,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Update records the current recipient text. Short queries clear the
// results and the selection immediately; longer ones schedule a search once
// the debounce window passes without another Update. Text equal to the
// selected recipient's email keeps the selection and sends nothing.
func (r *Resolver) Update(query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.query = query
	r.seq++
	r.stopLocked()

	if r.selected != nil && query == r.selected.Email {
		return
	}
	r.selected = nil

	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < MinQueryLength {
		r.results = nil
		r.err = nil
		return
	}
	seq := r.seq
	r.pending = r.clock.AfterFunc(r.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.run(ctx, seq, q)
	})
}

// Flush sends the pending search now instead of waiting for the debounce
// window, and returns its error. It does nothing when no search is pending.
func (r *Resolver) Flush(ctx context.Context) error {
	r.mu.Lock()
	if r.pending == nil || !r.pending.Stop() {
		r.mu.Unlock()
		return nil
	}
	r.pending = nil
	seq, q := r.seq, strings.TrimSpace(r.query)
	r.mu.Unlock()
	return r.run(ctx, seq, q)
}

func (r *Resolver) run(ctx context.Context, seq uint64, q string) error {
	matches, err := r.search.SearchUsers(ctx, q)

	r.mu.Lock()
	if r.closed || seq != r.seq {
		r.mu.Unlock()
		return err
	}
	r.pending = nil
	r.err = err
	if err != nil {
		r.log.Warn("recipient search failed", "query", q, "error", err)
		r.results = nil
	} else {
		r.results = matches
	}
	notify := r.notify
	r.mu.Unlock()

	if err == nil && notify != nil {
		notify(matches)
	}
	return err
}

// Select picks m as the recipient. Any pending or in-flight search is
// discarded and the results are cleared.
func (r *Resolver) Select(m model.UserMatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.stopLocked()
	r.selected = &m
	r.query = m.Email
	r.results = nil
	r.err = nil
}

// Clear forgets the query, the results and the selection.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.stopLocked()
	r.query = ""
	r.results = nil
	r.selected = nil
	r.err = nil
}

// Results returns the matches of the latest accepted search.
func (r *Resolver) Results() []model.UserMatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.UserMatch(nil), r.results...)
}

// Selected returns the chosen recipient, if any.
func (r *Resolver) Selected() (model.UserMatch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		return model.UserMatch{}, false
	}
	return *r.selected, true
}

// Err returns the error of the latest accepted search.
func (r *Resolver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close cancels any pending search. Later results are ignored.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.stopLocked()
}

func (r *Resolver) stopLocked() {
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}
