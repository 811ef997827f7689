package tracker

import (
	"context"

	"github.com/jfk9w/redditfeed/internal/feed"

	"github.com/jfk9w-go/flu/colf"
	"gopkg.in/guregu/null.v3"
)

type state[T feed.Item] struct {
	items      []T
	seen       colf.Set[feed.Cursor]
	loading    bool
	lastError  null.String
	pages      int
	exhausted  bool
	generation uint64
	cancel     context.CancelFunc
}

func (s *state[T]) cursor() feed.Cursor {
	if len(s.items) == 0 {
		return ""
	}

	return s.items[len(s.items)-1].Cursor()
}

func (s *state[T]) hasNextPage(pageSize int) bool {
	return s.pages > 0 && !s.exhausted && len(s.items)%pageSize == 0
}

// appendAll appends items which were not seen before and returns the number of appended items.
func (s *state[T]) appendAll(items []T) int {
	appended := 0
	for _, item := range items {
		if s.seen[item.Cursor()] {
			continue
		}

		s.seen.Add(item.Cursor())
		s.items = append(s.items, item)
		appended++
	}

	return appended
}

func (s *state[T]) replaceAll(items []T) int {
	s.items = nil
	s.seen = nil
	return s.appendAll(items)
}

// prependAll inserts unseen items before the existing ones preserving their order.
func (s *state[T]) prependAll(items []T) int {
	fresh := make([]T, 0, len(items))
	for _, item := range items {
		if s.seen[item.Cursor()] {
			continue
		}

		s.seen.Add(item.Cursor())
		fresh = append(fresh, item)
	}

	s.items = append(fresh, s.items...)
	return len(fresh)
}

func (s *state[T]) reset() {
	if s.cancel != nil {
		s.cancel()
	}

	*s = state[T]{generation: s.generation + 1}
}

func (s *state[T]) snapshot(pageSize int) feed.Snapshot[T] {
	items := make([]T, len(s.items))
	copy(items, s.items)
	return feed.Snapshot[T]{
		Items:       items,
		Loading:     s.loading,
		LastError:   s.lastError,
		Pages:       s.pages,
		HasNextPage: s.hasNextPage(pageSize),
	}
}
