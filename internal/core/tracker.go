package core

import (
	"context"
	"sort"

	"github.com/jfk9w/redditfeed/internal/core/internal/tracker"
	"github.com/jfk9w/redditfeed/internal/feed"

	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
)

type TrackerConfig struct {
	PageSize      int               `yaml:"pageSize,omitempty" doc:"Number of items requested per page." default:"15"`
	Collections   []feed.Collection `yaml:"collections,omitempty" doc:"Post collections available for browsing." enum:"hot,new,top,rising" default:"[\"hot\", \"new\", \"top\", \"rising\"]"`
	RefreshPolicy string            `yaml:"refreshPolicy,omitempty" doc:"How a successful refresh is merged into the feed. 'replace' keeps only the first page, 'prepend' inserts unseen items before the existing ones." enum:"replace,prepend" default:"replace"`
	Preload       bool              `yaml:"preload,omitempty" doc:"Whether the first page of each collection should be loaded on startup."`
	SortComments  bool              `yaml:"sortComments,omitempty" doc:"Whether comment pages should be sorted by creation time (newest first)." default:"true"`
}

type TrackerContext interface {
	apfel.PrometheusContext
	StorageContext
	TrackerConfig() TrackerConfig
}

// Tracker provides post and comment feed trackers.
// Items are fetched via the feed.Fetcher registered in the application.
type Tracker[C TrackerContext] struct {
	Posts    *tracker.Impl[feed.Collection, feed.Post]
	Comments *tracker.Impl[string, feed.Comment]
	Storage  StorageService

	fetcher *fetcherRef
}

func (t Tracker[C]) String() string {
	return "core.tracker"
}

func (t *Tracker[C]) Include(ctx context.Context, app apfel.MixinApp[C]) error {
	if t.Posts != nil {
		return nil
	}

	var storage Storage[C]
	switch err := app.Use(ctx, &storage, false); {
	case errors.Is(err, apfel.ErrDisabled):
		logf.Get(t).Warnf(ctx, "storage is disabled, fetch attempts will not be journaled")
	case err != nil:
		return err
	default:
		t.Storage = storage.StorageService
	}

	var metrics apfel.Prometheus[C]
	if err := app.Use(ctx, &metrics, false); err != nil {
		return err
	}

	config := app.Config().TrackerConfig()
	policy := tracker.RefreshPolicy(config.RefreshPolicy)
	switch policy {
	case "", tracker.Replace, tracker.Prepend:
	default:
		return errors.Errorf("unknown refresh policy: %s", config.RefreshPolicy)
	}

	collections := config.Collections
	if len(collections) == 0 {
		collections = feed.Collections
	}

	for _, collection := range collections {
		if _, err := feed.ParseCollection(collection.String()); err != nil {
			return err
		}
	}

	t.fetcher = new(fetcherRef)
	var journal feed.Journal
	if t.Storage != nil {
		journal = t.Storage
	}

	t.Posts = &tracker.Impl[feed.Collection, feed.Post]{
		Name:     "tracker.posts",
		Clock:    app,
		Fetch:    t.fetcher.fetchPosts,
		Journal:  journal,
		Metrics:  metrics.Registry().WithPrefix("app_posts"),
		PageSize: config.PageSize,
		Policy:   policy,
		Keys:     collections,
		Closed:   true,
		FeedID:   feed.PostsFeedID,
	}

	t.Comments = &tracker.Impl[string, feed.Comment]{
		Name:     "tracker.comments",
		Clock:    app,
		Fetch:    t.fetcher.fetchComments,
		Journal:  journal,
		Metrics:  metrics.Registry().WithPrefix("app_comments"),
		PageSize: config.PageSize,
		Policy:   policy,
		FeedID:   feed.CommentsFeedID,
	}

	if config.SortComments {
		t.Comments.Order = SortCommentsByTime
	}

	if err := app.Manage(ctx, t.Posts); err != nil {
		return err
	}

	return app.Manage(ctx, t.Comments)
}

func (t *Tracker[C]) AfterInclude(ctx context.Context, app apfel.MixinApp[C], mixin apfel.Mixin[C]) error {
	if fetcher, ok := mixin.(feed.Fetcher); ok {
		err := t.fetcher.set(ctx, fetcher)
		logf.Get(t).Resultf(ctx, logf.Info, logf.Panic, "register fetcher [%s]: %v", mixin, err)
	}

	return nil
}

// Preload loads the first page of each post collection.
func (t *Tracker[C]) Preload(ctx context.Context) error {
	return t.Posts.Preload(ctx)
}

type fetcherRef struct {
	fetcher feed.Fetcher
	mu      syncf.RWMutex
}

func (r *fetcherRef) set(ctx context.Context, fetcher feed.Fetcher) error {
	ctx, cancel := r.mu.Lock(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	defer cancel()
	if r.fetcher != nil {
		return errors.New("fetcher already registered")
	}

	r.fetcher = fetcher
	return nil
}

func (r *fetcherRef) get(ctx context.Context) (feed.Fetcher, error) {
	ctx, cancel := r.mu.RLock(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	defer cancel()
	if r.fetcher == nil {
		return nil, errors.New("no fetcher registered")
	}

	return r.fetcher, nil
}

func (r *fetcherRef) fetchPosts(ctx context.Context, collection feed.Collection, after feed.Cursor, limit int) (*feed.Page[feed.Post], error) {
	fetcher, err := r.get(ctx)
	if err != nil {
		return nil, err
	}

	return fetcher.FetchPosts(ctx, collection, after, limit)
}

func (r *fetcherRef) fetchComments(ctx context.Context, postID string, after feed.Cursor, limit int) (*feed.Page[feed.Comment], error) {
	fetcher, err := r.get(ctx)
	if err != nil {
		return nil, err
	}

	return fetcher.FetchComments(ctx, postID, after, limit)
}

// SortCommentsByTime sorts comments with the newest first.
func SortCommentsByTime(comments []feed.Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].PostedAt > comments[j].PostedAt
	})
}
