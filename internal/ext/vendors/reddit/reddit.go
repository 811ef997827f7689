package reddit

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jfk9w/redditfeed/internal/3rdparty/reddit"
	"github.com/jfk9w/redditfeed/internal/feed"

	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/httpf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
)

type ThumbnailConfig struct {
	PreferredWidths []int    `yaml:"preferredWidths,omitempty" doc:"Preferred thumbnail widths in order of preference." default:"[640, 960, 1020, 320]"`
	WidthTolerance  int      `yaml:"widthTolerance,omitempty" doc:"Maximum (exclusive) difference between preferred and candidate width." default:"160"`
	AnimatedExts    []string `yaml:"animatedExts,omitempty" doc:"Thumbnail url extensions which should never be selected." default:"[\"gif\", \"gifv\"]"`
}

// Resolver creates a thumbnail resolver falling back to defaults for empty values.
func (c ThumbnailConfig) Resolver() *feed.ThumbnailResolver {
	resolver := feed.DefaultThumbnailResolver()
	if len(c.PreferredWidths) > 0 {
		resolver.PreferredWidths = c.PreferredWidths
	}

	if c.WidthTolerance > 0 {
		resolver.WidthTolerance = c.WidthTolerance
	}

	if len(c.AnimatedExts) > 0 {
		resolver.AnimatedExts = c.AnimatedExts
	}

	return resolver
}

type Context interface {
	reddit.Context
	ThumbnailConfig() ThumbnailConfig
}

// Mixin provides Vendor to the application.
type Mixin[C Context] struct {
	*Vendor
}

func (m Mixin[C]) String() string {
	return ServiceID
}

func (m *Mixin[C]) Include(ctx context.Context, app apfel.MixinApp[C]) error {
	if m.Vendor != nil {
		return nil
	}

	var client reddit.Mixin[C]
	if err := app.Use(ctx, &client, false); err != nil {
		return err
	}

	m.Vendor = &Vendor{
		Client:     client.Client,
		Subreddit:  app.Config().RedditConfig().Subreddit,
		Thumbnails: app.Config().ThumbnailConfig().Resolver(),
	}

	return nil
}

const ServiceID = "vendors.reddit"

// Client is the reddit.com API used by Vendor.
type Client interface {
	GetListing(ctx context.Context, subreddit, sort, after string, limit int) (*reddit.Listing, error)
	GetComments(ctx context.Context, postID, after string, limit int) (*reddit.Listing, error)
}

// Vendor fetches and decodes posts and comments from reddit.com.
// It implements feed.Fetcher.
type Vendor struct {
	Client     Client
	Subreddit  string
	Thumbnails *feed.ThumbnailResolver
}

func (v *Vendor) String() string {
	return ServiceID
}

func (v *Vendor) FetchPosts(ctx context.Context, collection feed.Collection, after feed.Cursor, limit int) (*feed.Page[feed.Post], error) {
	listing, err := v.Client.GetListing(ctx, v.Subreddit, collection.String(), string(after), limit)
	if err != nil {
		return nil, classify(err)
	}

	return v.decodePosts(ctx, listing.Data.Children), nil
}

func (v *Vendor) FetchComments(ctx context.Context, postID string, after feed.Cursor, limit int) (*feed.Page[feed.Comment], error) {
	listing, err := v.Client.GetComments(ctx, postID, string(after), limit)
	if err != nil {
		return nil, classify(err)
	}

	return v.decodeComments(ctx, listing.Data.Children), nil
}

func classify(err error) error {
	var (
		requestErr  *reddit.RequestError
		responseErr *reddit.ResponseError
		statusErr   httpf.StatusCodeError
	)

	switch {
	case errors.As(err, &requestErr):
		return feed.NewError(feed.InvalidRequest, "", errors.Wrap(err, "invalid API request url"))
	case errors.As(err, &responseErr):
		return feed.NewError(feed.MalformedResponse, "", errors.Wrap(err, "malformed JSON data returned"))
	case errors.As(err, &statusErr):
		return feed.NewError(feed.TransportFailure, fmt.Sprintf("Reddit responded with %s.", statusErr), err)
	case syncf.IsContextRelated(err):
		return feed.NewError(feed.TransportFailure, "Request cancelled.", err)
	default:
		return feed.NewError(feed.TransportFailure, transportMessage(err), err)
	}
}

// transportMessage describes the network failure without request details.
func transportMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}

	return errors.Cause(err).Error()
}
