package iface_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jfk9w/redditfeed/internal/core/internal/iface"
	"github.com/jfk9w/redditfeed/internal/core/internal/tracker"
	"github.com/jfk9w/redditfeed/internal/feed"

	"github.com/jfk9w-go/telegram-bot-api"
	"github.com/stretchr/testify/assert"
)

type testClient struct {
	telegram.Client
	texts []string
}

func (c *testClient) Send(ctx context.Context, chatID telegram.ChatID, item telegram.Sendable, options *telegram.SendOptions) (*telegram.Message, error) {
	if text, ok := item.(telegram.Text); ok {
		c.texts = append(c.texts, text.Text)
	}

	return new(telegram.Message), nil
}

func (c *testClient) last() string {
	if len(c.texts) == 0 {
		return ""
	}

	return c.texts[len(c.texts)-1]
}

type testJournal struct {
	feedIDs []string
}

func (j *testJournal) RecordAttempt(ctx context.Context, attempt *feed.Attempt) error {
	return nil
}

func (j *testJournal) ListAttempts(ctx context.Context, feedID string, limit int) ([]feed.Attempt, error) {
	j.feedIDs = append(j.feedIDs, feedID)
	now := time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)
	return []feed.Attempt{{ID: "a1", FeedID: feedID, StartedAt: now, FinishedAt: now.Add(time.Second), Received: 3, Appended: 2, Skipped: 1}}, nil
}

func command(key string, args ...string) *telegram.Command {
	return &telegram.Command{
		Chat:    &telegram.Chat{ID: 1},
		User:    &telegram.User{ID: 2},
		Message: &telegram.Message{ID: 3},
		Key:     key,
		Args:    args,
	}
}

func newImpl(t *testing.T) *iface.Impl {
	posts := &tracker.Impl[feed.Collection, feed.Post]{
		PageSize: 2,
		Keys:     []feed.Collection{feed.Hot, feed.New},
		Closed:   true,
		Fetch: func(ctx context.Context, key feed.Collection, after feed.Cursor, limit int) (*feed.Page[feed.Post], error) {
			from, to := 0, 2
			if !after.IsZero() {
				from, to = 2, 3
			}

			items := make([]feed.Post, 0, to-from)
			for i := from; i < to; i++ {
				items = append(items, feed.Post{UID: fmt.Sprint(i), FullName: fmt.Sprintf("t3_%d", i), Title: fmt.Sprintf("Post <%d>", i), Score: 10 * i})
			}

			return &feed.Page[feed.Post]{Items: items}, nil
		},
	}

	comments := &tracker.Impl[string, feed.Comment]{
		PageSize: 2,
		Fetch: func(ctx context.Context, postID string, after feed.Cursor, limit int) (*feed.Page[feed.Comment], error) {
			return &feed.Page[feed.Comment]{Items: []feed.Comment{{UID: "c1", FullName: "t1_c1", Author: "bob", Body: "re: " + postID, Score: 7}}}, nil
		},
	}

	t.Cleanup(func() {
		_ = posts.Close()
		_ = comments.Close()
	})

	return &iface.Impl{
		PostTracker:    posts,
		CommentTracker: comments,
		WaitTimeout:    5 * time.Second,
	}
}

func TestImpl_Feed(t *testing.T) {
	ctx := context.Background()
	impl, client := newImpl(t), new(testClient)

	assert.NoError(t, impl.Feed(ctx, client, command("/feed")))
	assert.Contains(t, client.last(), "<b>hot</b> – 2 posts, 1 pages")
	assert.Contains(t, client.last(), "1. Post &lt;0&gt; (0, <code>0</code>)")
	assert.Contains(t, client.last(), "more available")

	assert.NoError(t, impl.More(ctx, client, command("/more", "hot")))
	assert.Contains(t, client.last(), "3. Post &lt;2&gt; (20, <code>2</code>)")
	assert.NotContains(t, client.last(), "1. Post")

	assert.EqualError(t, impl.More(ctx, client, command("/more", "hot")), "No more items.")

	assert.NoError(t, impl.Refresh(ctx, client, command("/refresh")))
	assert.Contains(t, client.last(), "2 posts")

	assert.NoError(t, impl.Reset(ctx, client, command("/reset")))
	assert.Equal(t, "👍", client.last())
}

func TestImpl_Usage(t *testing.T) {
	ctx := context.Background()
	impl, client := newImpl(t), new(testClient)

	assert.Contains(t, impl.Feed(ctx, client, command("/feed", "random")).Error(), "Usage: /feed")
	assert.Contains(t, impl.More(ctx, client, command("/more", "hot", "new")).Error(), "Usage: /feed")
	assert.Contains(t, impl.Comments(ctx, client, command("/comments")).Error(), "Usage: /comments")
	assert.Error(t, impl.Attempts(ctx, client, command("/attempts")))
	assert.Empty(t, client.texts)
}

func TestImpl_Comments(t *testing.T) {
	ctx := context.Background()
	impl, client := newImpl(t), new(testClient)

	assert.NoError(t, impl.Comments(ctx, client, command("/comments", "abc")))
	assert.Contains(t, client.last(), "<b>abc</b> – 1 comments")
	assert.Contains(t, client.last(), "<i>bob</i> (7): re: abc")

	assert.EqualError(t, impl.Comments(ctx, client, command("/comments", "abc", "more")), "No more items.")
}

func TestImpl_Attempts(t *testing.T) {
	ctx := context.Background()
	impl, client := newImpl(t), new(testClient)
	journal := new(testJournal)
	impl.Journal = journal

	assert.NoError(t, impl.Attempts(ctx, client, command("/attempts")))
	assert.NoError(t, impl.Attempts(ctx, client, command("/attempts", "new")))
	assert.NoError(t, impl.Attempts(ctx, client, command("/attempts", "abc")))
	assert.Equal(t, []string{"posts/hot", "posts/new", "comments/abc"}, journal.feedIDs)
	assert.Contains(t, client.last(), "2022-01-02T03:04:05Z next: 3 received, 2 appended, 1 skipped in 1s – ok")
}
