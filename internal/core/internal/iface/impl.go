package iface

import (
	"context"
	"time"

	"github.com/jfk9w/redditfeed/internal/feed"

	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/jfk9w-go/telegram-bot-api"
	"github.com/jfk9w-go/telegram-bot-api/ext/tapp"
	"github.com/pkg/errors"
)

const ServiceID = "core.interface"

// DefaultWaitTimeout limits how long a command waits for fetch completion.
var DefaultWaitTimeout = 30 * time.Second

type Impl struct {
	PostTracker    feed.PostTracker
	CommentTracker feed.CommentTracker
	Journal        feed.Journal
	Scope          tapp.CommandScope
	WaitTimeout    time.Duration
}

func (i *Impl) String() string {
	return ServiceID
}

func (i *Impl) CommandScope() tapp.CommandScope {
	return i.Scope
}

//
// Command listeners
//

func (i *Impl) Feed(ctx context.Context, client telegram.Client, cmd *telegram.Command) error {
	collection, err := parseCollection(cmd)
	if err != nil {
		return err
	}

	snapshot, err := i.PostTracker.Snapshot(ctx, collection)
	if err != nil {
		return err
	}

	if len(snapshot.Items) == 0 && !snapshot.Loading {
		snapshot, err = wait(ctx, i.timeout(), i.PostTracker.FetchNext, collection)
		if err != nil {
			return err
		}
	}

	return reply(ctx, client, cmd, formatPosts(collection, snapshot, 0))
}

func (i *Impl) More(ctx context.Context, client telegram.Client, cmd *telegram.Command) error {
	collection, err := parseCollection(cmd)
	if err != nil {
		return err
	}

	before, err := i.PostTracker.Snapshot(ctx, collection)
	if err != nil {
		return err
	}

	if before.Pages > 0 && !before.HasNextPage {
		return errNoMore
	}

	after, err := wait(ctx, i.timeout(), i.PostTracker.FetchNext, collection)
	if err != nil {
		return err
	}

	return reply(ctx, client, cmd, formatPosts(collection, after, len(before.Items)))
}

func (i *Impl) Refresh(ctx context.Context, client telegram.Client, cmd *telegram.Command) error {
	collection, err := parseCollection(cmd)
	if err != nil {
		return err
	}

	snapshot, err := wait(ctx, i.timeout(), i.PostTracker.Refresh, collection)
	if err != nil {
		return err
	}

	return reply(ctx, client, cmd, formatPosts(collection, snapshot, 0))
}

func (i *Impl) Reset(ctx context.Context, client telegram.Client, cmd *telegram.Command) error {
	collection, err := parseCollection(cmd)
	if err != nil {
		return err
	}

	if err := i.PostTracker.Reset(ctx, collection); err != nil {
		return err
	}

	return cmd.Reply(ctx, client, "👍")
}

func (i *Impl) Comments(ctx context.Context, client telegram.Client, cmd *telegram.Command) error {
	postID := cmd.Arg(0)
	if postID == "" {
		return errComments
	}

	before, err := i.CommentTracker.Snapshot(ctx, postID)
	if err != nil {
		return err
	}

	offset := 0
	switch {
	case cmd.Arg(1) == "more":
		if before.Pages > 0 && !before.HasNextPage {
			return errNoMore
		}

		offset = len(before.Items)
		fallthrough

	case len(before.Items) == 0 && !before.Loading:
		before, err = wait(ctx, i.timeout(), i.CommentTracker.FetchNext, postID)
		if err != nil {
			return err
		}
	}

	return reply(ctx, client, cmd, formatComments(postID, before, offset))
}

func (i *Impl) Attempts(ctx context.Context, client telegram.Client, cmd *telegram.Command) error {
	if i.Journal == nil {
		return errors.New("Fetch attempt journal is disabled.")
	}

	feedID := feed.PostsFeedID(feed.Hot)
	if arg := cmd.Arg(0); arg != "" {
		if collection, err := feed.ParseCollection(arg); err == nil {
			feedID = feed.PostsFeedID(collection)
		} else {
			feedID = feed.CommentsFeedID(arg)
		}
	}

	attempts, err := i.Journal.ListAttempts(ctx, feedID, 10)
	if err != nil {
		return err
	}

	return reply(ctx, client, cmd, formatAttempts(feedID, attempts))
}

//
// Implementation details
//

func (i *Impl) timeout() time.Duration {
	if i.WaitTimeout > 0 {
		return i.WaitTimeout
	}

	return DefaultWaitTimeout
}

func parseCollection(cmd *telegram.Command) (feed.Collection, error) {
	if len(cmd.Args) > 1 {
		return "", errFeed
	}

	value := cmd.Arg(0)
	if value == "" {
		return feed.Hot, nil
	}

	collection, err := feed.ParseCollection(value)
	if err != nil {
		return "", errFeed
	}

	return collection, nil
}

type fetchFunc[K comparable, T feed.Item] func(ctx context.Context, key K) (syncf.Ref[feed.Snapshot[T]], error)

func wait[K comparable, T feed.Item](ctx context.Context, timeout time.Duration, start fetchFunc[K, T], key K) (feed.Snapshot[T], error) {
	ref, err := start(ctx, key)
	if err != nil {
		return feed.Snapshot[T]{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	snapshot, err := ref.Get(ctx)
	if errors.Is(err, feed.ErrStale) {
		return snapshot, errors.New("Feed has been reset.")
	}

	return snapshot, err
}

func reply(ctx context.Context, client telegram.Client, cmd *telegram.Command, text string) error {
	_, err := client.Send(ctx, cmd.Chat.ID,
		telegram.Text{
			Text:                  text,
			ParseMode:             telegram.HTML,
			DisableWebPagePreview: true,
		},
		&telegram.SendOptions{ReplyToMessageID: cmd.Message.ID})
	logf.Get(ServiceID).Resultf(ctx, logf.Trace, logf.Warn, "reply to %s: %v", cmd, err)
	return err
}
