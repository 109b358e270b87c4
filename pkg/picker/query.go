// Package picker implements the searchable, paginated entity picker used to
// attach actors, directors and genres to a movie.
//
// A Query is a single-writer state machine (Idle, Loading, Loaded, Error)
// guarded by a generation token. Opening the picker, changing the search term
// and closing it each start a new generation; a response is only applied if
// its generation is still current, so an older slow response can never
// overwrite a newer one.
package picker

import (
	"context"
	"errors"
	"sync"
	"time"

	"moviecat-admin/internal/dto"
	"moviecat-admin/internal/pkg/logger"
	"moviecat-admin/pkg/entity"
)

const module = "PICKER"

const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultPerPage  = 20
)

var (
	ErrClosed         = errors.New("picker: not open")
	ErrSuperseded     = errors.New("picker: response superseded")
	ErrEmptySelection = errors.New("picker: nothing selected")
	ErrNotInResults   = errors.New("picker: entity is not in the current results")
	ErrConfirming     = errors.New("picker: confirm already in progress")
)

// Fetcher runs one page of a name search over an entity collection.
type Fetcher interface {
	Filter(ctx context.Context, kind entity.Kind, term string, page, perPage int) (*dto.FilterResponse, error)
}

type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Selection is one basket entry. Role is only meaningful for actors.
type Selection struct {
	Entity entity.RelatedEntity
	Role   string
}

// Snapshot is a copy of the picker state for rendering.
type Snapshot struct {
	Open     bool
	Term     string
	Page     int
	HasMore  bool
	State    State
	Err      error
	Pending  bool // a debounced search has not started yet
	Results  []entity.RelatedEntity
	Basket   []Selection
	Excluded []string
	Stale    int // responses dropped because a newer generation started
}

type Query struct {
	mu       sync.Mutex
	kind     entity.RelationKind
	fetcher  Fetcher
	debounce time.Duration
	perPage  int
	logger   logger.ILogger
	onChange func(Snapshot)

	open       bool
	session    uint64
	confirming bool
	life       context.Context
	term       string
	page       int
	hasMore    bool
	state      State
	err        error
	pending    bool
	results    []entity.RelatedEntity
	seen       map[string]struct{}
	excluded   map[string]struct{}
	basket     []Selection
	gen        uint64
	cancel     context.CancelFunc
	timer      *time.Timer
	stale      int
}

type Option func(*Query)

func WithDebounce(d time.Duration) Option {
	return func(q *Query) {
		if d >= 0 {
			q.debounce = d
		}
	}
}

func WithPerPage(n int) Option {
	return func(q *Query) {
		if n > 0 {
			q.perPage = n
		}
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(q *Query) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithOnChange registers a callback invoked, outside the lock, after every
// state change including those made by debounced background fetches.
func WithOnChange(fn func(Snapshot)) Option {
	return func(q *Query) {
		q.onChange = fn
	}
}

// New creates a closed picker for one relation kind.
func New(kind entity.RelationKind, fetcher Fetcher, opts ...Option) *Query {
	q := &Query{
		kind:     kind,
		fetcher:  fetcher,
		debounce: DefaultDebounce,
		perPage:  DefaultPerPage,
		logger:   logger.NewNopLogger(),
		seen:     make(map[string]struct{}),
		excluded: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Query) Kind() entity.RelationKind {
	return q.kind
}

// Open resets the picker (empty term, results and basket) with the ids that
// must never be offered, and fetches the first page.
func (q *Query) Open(ctx context.Context, excludedIds []string) error {
	q.mu.Lock()
	q.resetLocked()
	q.open = true
	q.session++
	q.confirming = false
	q.life = context.WithoutCancel(ctx)
	q.term = ""
	q.basket = nil
	q.excluded = make(map[string]struct{}, len(excludedIds))
	for _, id := range excludedIds {
		q.excluded[id] = struct{}{}
	}
	gen := q.gen
	q.mu.Unlock()

	q.notify()
	return q.run(ctx, gen, false)
}

// SetSearchTerm records term at once and schedules the search after the
// debounce delay. Any fetch in flight is superseded immediately.
func (q *Query) SetSearchTerm(term string) {
	q.mu.Lock()
	if !q.open {
		q.mu.Unlock()
		return
	}
	basket := q.basket
	q.resetLocked()
	q.basket = basket
	q.term = term
	q.pending = true
	gen := q.gen
	life := q.life
	q.timer = time.AfterFunc(q.debounce, func() {
		q.mu.Lock()
		if gen != q.gen {
			q.mu.Unlock()
			return
		}
		q.pending = false
		q.timer = nil
		q.mu.Unlock()

		if err := q.run(life, gen, false); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrClosed) {
			q.logger.Warn(module, "Debounced search failed", map[string]interface{}{
				"kind": q.kind, "term": term, "error": err.Error(),
			})
		}
	})
	q.mu.Unlock()

	q.notify()
}

// FetchNextPage loads the following page. It does nothing while a fetch is
// running, a debounced search is pending, or the last page was reached.
func (q *Query) FetchNextPage(ctx context.Context) error {
	return q.run(ctx, 0, true)
}

// run fetches the next page for generation want (0 means the current one).
func (q *Query) run(ctx context.Context, want uint64, guarded bool) error {
	q.mu.Lock()
	if !q.open {
		q.mu.Unlock()
		return ErrClosed
	}
	if want != 0 && want != q.gen {
		q.mu.Unlock()
		return ErrSuperseded
	}
	if guarded && (q.state == StateLoading || !q.hasMore || q.pending) {
		q.mu.Unlock()
		return nil
	}
	if q.cancel != nil {
		q.cancel()
	}
	gen := q.gen
	page := q.page + 1
	term := q.term
	fctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.state = StateLoading
	q.err = nil
	q.mu.Unlock()

	q.notify()

	resp, err := q.fetcher.Filter(fctx, q.kind.Target(), term, page, q.perPage)
	cancel()

	q.mu.Lock()
	if gen != q.gen || !q.open {
		q.stale++
		q.mu.Unlock()
		q.logger.Debug(module, "Dropped stale page", map[string]interface{}{
			"kind": q.kind, "term": term, "page": page,
		})
		q.notify()
		return ErrSuperseded
	}
	q.cancel = nil

	if err != nil {
		q.state = StateError
		q.err = err
		q.mu.Unlock()
		q.notify()
		return err
	}

	added := q.appendLocked(resp.Items)
	q.page = page
	q.hasMore = page < resp.Pagination.TotalPages
	q.state = StateLoaded
	q.mu.Unlock()

	q.logger.Debug(module, "Page applied", map[string]interface{}{
		"kind": q.kind, "term": term, "page": page, "added": added,
	})
	q.notify()
	return nil
}

// appendLocked adds items that are neither excluded nor already present.
func (q *Query) appendLocked(items []entity.RelatedEntity) int {
	added := 0
	for _, item := range items {
		if _, skip := q.excluded[item.ID]; skip {
			continue
		}
		if _, dup := q.seen[item.ID]; dup {
			continue
		}
		q.seen[item.ID] = struct{}{}
		q.results = append(q.results, item)
		added++
	}
	return added
}

// ToggleSelect adds e to the basket, or removes it when already selected.
// Only entities currently in the results can be added.
func (q *Query) ToggleSelect(e entity.RelatedEntity) error {
	q.mu.Lock()
	if !q.open {
		q.mu.Unlock()
		return ErrClosed
	}
	for i, sel := range q.basket {
		if sel.Entity.ID == e.ID {
			q.basket = append(q.basket[:i:i], q.basket[i+1:]...)
			q.mu.Unlock()
			q.notify()
			return nil
		}
	}
	if _, ok := q.seen[e.ID]; !ok {
		q.mu.Unlock()
		return ErrNotInResults
	}
	for _, r := range q.results {
		if r.ID == e.ID {
			e = r
			break
		}
	}
	q.basket = append(q.basket, Selection{Entity: e})
	q.mu.Unlock()

	q.notify()
	return nil
}

// SetRole sets the role label of a selected entity; no-op when not selected.
func (q *Query) SetRole(id, role string) {
	q.mu.Lock()
	changed := false
	for i := range q.basket {
		if q.basket[i].Entity.ID == id {
			q.basket[i].Role = role
			changed = true
			break
		}
	}
	q.mu.Unlock()

	if changed {
		q.notify()
	}
}

// Exclude adds ids to the excluded set, dropping them from the results and
// the basket. Used after some selections were linked but the rest failed.
func (q *Query) Exclude(ids ...string) {
	q.mu.Lock()
	if !q.open {
		q.mu.Unlock()
		return
	}
	for _, id := range ids {
		q.excluded[id] = struct{}{}
		delete(q.seen, id)
	}

	results := q.results[:0:0]
	for _, r := range q.results {
		if _, skip := q.excluded[r.ID]; !skip {
			results = append(results, r)
		}
	}
	q.results = results

	basket := q.basket[:0:0]
	for _, sel := range q.basket {
		if _, skip := q.excluded[sel.Entity.ID]; !skip {
			basket = append(basket, sel)
		}
	}
	q.basket = basket
	q.mu.Unlock()

	q.notify()
}

// Confirm hands the basket to apply. Only one Confirm runs per session; a
// second call made while apply is running returns ErrConfirming. The picker
// closes when apply succeeds and stays open, basket intact, when it fails.
// If the picker was closed or reopened while apply ran, the newer session is
// left alone.
func (q *Query) Confirm(ctx context.Context, apply func(context.Context, []Selection) error) error {
	q.mu.Lock()
	if !q.open {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.confirming {
		q.mu.Unlock()
		return ErrConfirming
	}
	if len(q.basket) == 0 {
		q.mu.Unlock()
		return ErrEmptySelection
	}
	selections := append([]Selection(nil), q.basket...)
	session := q.session
	q.confirming = true
	q.mu.Unlock()

	err := apply(ctx, selections)

	q.mu.Lock()
	current := q.open && q.session == session
	if current {
		q.confirming = false
	}
	q.mu.Unlock()

	if err != nil {
		return err
	}
	if current {
		q.Close()
	}
	return nil
}

// Close discards the session and ignores any fetch still in flight.
func (q *Query) Close() {
	q.mu.Lock()
	q.resetLocked()
	q.open = false
	q.session++
	q.confirming = false
	q.term = ""
	q.basket = nil
	q.excluded = make(map[string]struct{})
	q.hasMore = false
	q.life = nil
	q.mu.Unlock()

	q.notify()
}

// resetLocked starts a new generation with empty results.
func (q *Query) resetLocked() {
	q.gen++
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.pending = false
	q.page = 0
	q.hasMore = true
	q.state = StateIdle
	q.err = nil
	q.results = nil
	q.seen = make(map[string]struct{})
}

func (q *Query) IsOpen() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.open
}

// Snapshot returns a copy of the current state.
func (q *Query) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	excluded := make([]string, 0, len(q.excluded))
	for id := range q.excluded {
		excluded = append(excluded, id)
	}
	return Snapshot{
		Open:     q.open,
		Term:     q.term,
		Page:     q.page,
		HasMore:  q.hasMore,
		State:    q.state,
		Err:      q.err,
		Pending:  q.pending,
		Results:  append([]entity.RelatedEntity(nil), q.results...),
		Basket:   append([]Selection(nil), q.basket...),
		Excluded: excluded,
		Stale:    q.stale,
	}
}

func (q *Query) notify() {
	if q.onChange != nil {
		q.onChange(q.Snapshot())
	}
}
