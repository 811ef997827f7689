package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/jfk9w/redditfeed/internal/feed"

	"github.com/gofrs/uuid"
	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/me3x"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/guregu/null.v3"
)

// DefaultPageSize is used when Impl.PageSize is not set.
const DefaultPageSize = 15

type RefreshPolicy string

const (
	// Replace drops all items and keeps only the first page on refresh.
	Replace RefreshPolicy = "replace"
	// Prepend inserts unseen items from the first page before existing items on refresh.
	Prepend RefreshPolicy = "prepend"
)

// Fetch loads a page of items for the feed.
type Fetch[K comparable, T feed.Item] func(ctx context.Context, key K, after feed.Cursor, limit int) (*feed.Page[T], error)

// Impl tracks pagination state for a set of feeds.
// At most one fetch per feed may be in flight at any time.
type Impl[K comparable, T feed.Item] struct {
	Name     string
	Clock    syncf.Clock
	Fetch    Fetch[K, T]
	Journal  feed.Journal
	Metrics  me3x.Registry
	PageSize int
	Policy   RefreshPolicy
	// Order is applied to each fetched page before merging.
	Order func(items []T)
	// Keys are created on the first use of the tracker.
	Keys []K
	// Closed rejects keys which are not listed in Keys.
	Closed bool
	// FeedID is used for journal records. Defaults to fmt.Sprint(key).
	FeedID func(key K) string

	ctx    context.Context
	cancel context.CancelFunc
	states map[K]*state[T]
	work   syncf.WaitGroup
	mu     syncf.RWMutex
	once   sync.Once
}

func (t *Impl[K, T]) String() string {
	if t.Name == "" {
		return "tracker"
	}

	return t.Name
}

func (t *Impl[K, T]) init() {
	t.once.Do(func() {
		t.ctx, t.cancel = context.WithCancel(context.Background())
		t.states = make(map[K]*state[T], len(t.Keys))
		for _, key := range t.Keys {
			t.states[key] = new(state[T])
		}

		if t.Clock == nil {
			t.Clock = syncf.DefaultClock
		}

		if t.Metrics == nil {
			t.Metrics = me3x.DummyRegistry{}
		}

		if t.PageSize <= 0 {
			t.PageSize = DefaultPageSize
		}

		if t.Policy == "" {
			t.Policy = Replace
		}

		if t.FeedID == nil {
			t.FeedID = func(key K) string { return fmt.Sprint(key) }
		}
	})
}

// FetchNext starts fetching the page following the last item of the feed.
// The returned Ref resolves to the feed snapshot after the fetch completes.
// Fetch errors are not returned: they are available via Snapshot.LastError.
func (t *Impl[K, T]) FetchNext(ctx context.Context, key K) (syncf.Ref[feed.Snapshot[T]], error) {
	return t.start(ctx, key, false)
}

// Refresh starts fetching the feed from the start.
// On success the feed items are updated according to the refresh policy.
func (t *Impl[K, T]) Refresh(ctx context.Context, key K) (syncf.Ref[feed.Snapshot[T]], error) {
	return t.start(ctx, key, true)
}

// HasNextPage guesses whether there may be more items available for the feed.
// Upstream does not report this, so the guess is based on the number of items fetched:
// it is true when at least one page has been fetched, the item count is a multiple
// of page size and the last fetched page was full.
func (t *Impl[K, T]) HasNextPage(ctx context.Context, key K) (bool, error) {
	snapshot, err := t.Snapshot(ctx, key)
	return snapshot.HasNextPage, err
}

// Snapshot returns the current feed state.
func (t *Impl[K, T]) Snapshot(ctx context.Context, key K) (feed.Snapshot[T], error) {
	t.init()
	ctx, cancel := t.mu.RLock(ctx)
	if ctx.Err() != nil {
		return feed.Snapshot[T]{}, ctx.Err()
	}

	defer cancel()
	s, ok := t.states[key]
	if !ok {
		if t.Closed {
			return feed.Snapshot[T]{}, errors.Wrapf(feed.ErrUnknownFeed, "%v", key)
		}

		return feed.Snapshot[T]{Items: []T{}}, nil
	}

	return s.snapshot(t.PageSize), nil
}

// Reset cancels the in-flight fetch (if any) and clears the feed state.
// Completion of the cancelled fetch is discarded.
func (t *Impl[K, T]) Reset(ctx context.Context, key K) error {
	t.init()
	ctx, cancel := t.mu.Lock(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	defer cancel()
	s, err := t.state(key, false)
	if err != nil || s == nil {
		return err
	}

	s.reset()
	logf.Get(t).Debugf(ctx, "reset [%v] to generation %d", key, s.generation)
	return nil
}

// Preload fetches the first page of all known feeds concurrently and waits for completion.
func (t *Impl[K, T]) Preload(ctx context.Context) error {
	t.init()
	work, ctx := errgroup.WithContext(ctx)
	for _, key := range t.Keys {
		key := key
		work.Go(func() error {
			ref, err := t.FetchNext(ctx, key)
			if errors.Is(err, feed.ErrLoading) {
				return nil
			} else if err != nil {
				return errors.Wrapf(err, "preload %v", key)
			}

			snapshot, err := ref.Get(ctx)
			switch {
			case errors.Is(err, feed.ErrStale):
				return nil
			case err != nil:
				return errors.Wrapf(err, "preload %v", key)
			}

			logf.Get(t).Resultf(ctx, logf.Info, logf.Warn, "preloaded [%v] with %d items: %v",
				key, len(snapshot.Items), nullError(snapshot.LastError))
			return nil
		})
	}

	return work.Wait()
}

func (t *Impl[K, T]) Close() error {
	t.init()
	t.cancel()
	t.work.Wait()
	return nil
}

func (t *Impl[K, T]) state(key K, create bool) (*state[T], error) {
	s, ok := t.states[key]
	if ok {
		return s, nil
	}

	if t.Closed {
		return nil, errors.Wrapf(feed.ErrUnknownFeed, "%v", key)
	}

	if create {
		s = new(state[T])
		t.states[key] = s
	}

	return s, nil
}

func (t *Impl[K, T]) start(ctx context.Context, key K, refresh bool) (syncf.Ref[feed.Snapshot[T]], error) {
	t.init()
	ctx, cancel := t.mu.Lock(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	defer cancel()
	if t.ctx.Err() != nil {
		return nil, feed.ErrClosed
	}

	s, err := t.state(key, true)
	if err != nil {
		return nil, err
	}

	if s.loading {
		return nil, feed.ErrLoading
	}

	var after feed.Cursor
	if !refresh {
		after = s.cursor()
	}

	s.loading = true
	s.lastError = null.String{}
	s.generation++
	generation := s.generation
	attempt := &feed.Attempt{
		ID:        uuid.Must(uuid.NewV4()).String(),
		FeedID:    t.FeedID(key),
		Cursor:    null.NewString(string(after), !after.IsZero()),
		Refresh:   refresh,
		StartedAt: t.Clock.Now(),
	}

	t.Metrics.Gauge("loading", t.labels(key)).Inc()
	result := new(syncf.Var[feed.Snapshot[T]])
	if _, err := syncf.GoWith(t.ctx, t.spawn(s), func(ctx context.Context) {
		page, err := t.fetch(ctx, key, after)
		snapshot, err := t.complete(ctx, key, generation, attempt, page, err)
		_ = result.Complete(context.Background(), snapshot, err)
	}); err != nil {
		s.loading = false
		t.Metrics.Gauge("loading", t.labels(key)).Dec()
		return nil, feed.ErrClosed
	}

	logf.Get(t).Debugf(ctx, "started fetch [%v] after [%s] (refresh: %t, generation: %d)", key, after, refresh, generation)
	return result, nil
}

func (t *Impl[K, T]) spawn(s *state[T]) syncf.ContextFunc {
	return func(parent context.Context) (context.Context, context.CancelFunc) {
		ctx, done := t.work.Spawn(parent)
		ctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		release := func() {
			cancel()
			done()
		}

		// GoWith does not call release if the context is already done
		if ctx.Err() != nil {
			release()
		}

		return ctx, release
	}
}

func (t *Impl[K, T]) fetch(ctx context.Context, key K, after feed.Cursor) (page *feed.Page[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			page, err = nil, errors.Errorf("fetch panicked: %v", r)
		}
	}()

	page, err = t.Fetch(ctx, key, after, t.PageSize)
	if err == nil && page == nil {
		page = new(feed.Page[T])
	}

	return
}

func (t *Impl[K, T]) complete(ctx context.Context,
	key K, generation uint64, attempt *feed.Attempt,
	page *feed.Page[T], fetchErr error) (feed.Snapshot[T], error) {

	t.Metrics.Gauge("loading", t.labels(key)).Dec()
	if fetchErr == nil && t.Order != nil {
		t.Order(page.Items)
	}

	snapshot, appended, ok := t.apply(key, generation, attempt.Refresh, page, fetchErr)

	attempt.FinishedAt = t.Clock.Now()
	attempt.Received = page.Received()
	attempt.Appended = appended
	if page != nil {
		attempt.Skipped = page.Skipped
	}

	result := "ok"
	switch {
	case !ok:
		result = "stale"
		attempt.Stale = true
	case fetchErr != nil:
		result = "error"
	}

	if fetchErr != nil {
		attempt.Error = null.StringFrom(fetchErr.Error())
		if kind := feed.KindOf(fetchErr); kind != 0 {
			attempt.ErrorCode = null.IntFrom(int64(kind.Code()))
		}
	}

	t.Metrics.Counter("fetches", t.labels(key).Add("result", result)).Inc()
	t.Metrics.Counter("appended", t.labels(key)).Add(float64(attempt.Appended))
	t.Metrics.Counter("skipped", t.labels(key)).Add(float64(attempt.Skipped))
	logf.Get(t).Resultf(ctx, logf.Debug, logf.Warn, "fetch [%v] after [%s] completed (%s, %d received, %d appended, %d skipped): %v",
		key, attempt.Cursor.String, result, attempt.Received, attempt.Appended, attempt.Skipped, fetchErr)

	if t.Journal != nil {
		err := t.Journal.RecordAttempt(context.Background(), attempt)
		logf.Get(t).Resultf(ctx, logf.Trace, logf.Warn, "record attempt [%s]: %v", attempt.ID, err)
	}

	if !ok {
		return snapshot, feed.ErrStale
	}

	return snapshot, nil
}

func (t *Impl[K, T]) apply(key K, generation uint64, refresh bool, page *feed.Page[T], fetchErr error) (feed.Snapshot[T], int, bool) {
	_, cancel := t.mu.Lock(context.Background())
	defer cancel()

	s := t.states[key]
	if s == nil {
		return feed.Snapshot[T]{Items: []T{}}, 0, false
	}

	if s.generation != generation {
		return s.snapshot(t.PageSize), 0, false
	}

	s.loading = false
	s.cancel = nil
	if fetchErr != nil {
		s.lastError = null.StringFrom(feed.MessageOf(fetchErr))
		return s.snapshot(t.PageSize), 0, true
	}

	var (
		appended int
		short    = page.Received() < t.PageSize
	)

	switch {
	case !refresh:
		appended = s.appendAll(page.Items)
		s.pages++
		s.exhausted = short

	case t.Policy == Prepend && s.pages > 0:
		appended = s.prependAll(page.Items)

	default:
		appended = s.replaceAll(page.Items)
		s.pages = 1
		s.exhausted = short
	}

	return s.snapshot(t.PageSize), appended, true
}

func (t *Impl[K, T]) labels(key K) me3x.Labels {
	return make(me3x.Labels, 0, 2).Add("feed", key)
}

func nullError(value null.String) error {
	if value.Valid {
		return errors.New(value.String)
	}

	return nil
}
