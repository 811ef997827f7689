package feed

import (
	"context"

	"github.com/jfk9w-go/flu/syncf"
)

// PostFetcher loads pages of posts from upstream.
type PostFetcher interface {
	FetchPosts(ctx context.Context, collection Collection, after Cursor, limit int) (*Page[Post], error)
}

// CommentFetcher loads pages of comments for a post from upstream.
type CommentFetcher interface {
	FetchComments(ctx context.Context, postID string, after Cursor, limit int) (*Page[Comment], error)
}

type Fetcher interface {
	PostFetcher
	CommentFetcher
}

// Journal keeps the history of fetch attempts.
type Journal interface {
	RecordAttempt(ctx context.Context, attempt *Attempt) error
	ListAttempts(ctx context.Context, feedID string, limit int) ([]Attempt, error)
}

// Tracker keeps pagination state for a set of feeds identified by K.
type Tracker[K comparable, T Item] interface {
	FetchNext(ctx context.Context, key K) (syncf.Ref[Snapshot[T]], error)
	Refresh(ctx context.Context, key K) (syncf.Ref[Snapshot[T]], error)
	HasNextPage(ctx context.Context, key K) (bool, error)
	Snapshot(ctx context.Context, key K) (Snapshot[T], error)
	Reset(ctx context.Context, key K) error
}

type (
	PostTracker    = Tracker[Collection, Post]
	CommentTracker = Tracker[string, Comment]
)
