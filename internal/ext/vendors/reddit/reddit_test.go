package reddit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jfk9w/redditfeed/internal/3rdparty/reddit"
	"github.com/jfk9w/redditfeed/internal/feed"
	vendor "github.com/jfk9w/redditfeed/internal/ext/vendors/reddit"

	"github.com/jfk9w-go/flu/httpf"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gopkg.in/guregu/null.v3"
)

type testClient struct {
	listing *reddit.Listing
	err     error
	calls   []string
}

func (c *testClient) GetListing(ctx context.Context, subreddit, sort, after string, limit int) (*reddit.Listing, error) {
	c.calls = append(c.calls, "listing:"+subreddit+":"+sort+":"+after)
	return c.listing, c.err
}

func (c *testClient) GetComments(ctx context.Context, postID, after string, limit int) (*reddit.Listing, error) {
	c.calls = append(c.calls, "comments:"+postID+":"+after)
	return c.listing, c.err
}

func listing(t *testing.T, things ...string) *reddit.Listing {
	listing := new(reddit.Listing)
	for _, thing := range things {
		var child reddit.Thing
		if err := json.Unmarshal([]byte(thing), &child); err != nil {
			t.Fatal(err)
		}

		listing.Data.Children = append(listing.Data.Children, child)
	}

	return listing
}

func TestVendor_FetchPosts(t *testing.T) {
	client := &testClient{listing: listing(t,
		`{"kind": "t3", "data": {
		  "id": "a", "name": "t3_a", "title": "First", "author": "alice", "score": 10,
		  "permalink": "/r/all/comments/a/first/", "created_utc": 1600000000.0,
		  "thumbnail": "https://b.thumbs.redditmedia.com/a.jpg", "thumbnail_width": 140, "thumbnail_height": 78,
		  "preview": {"images": [{
		    "source": {"url": "https://preview.redd.it/a.jpg?width=1920&amp;s=x", "width": 1920, "height": 1080},
		    "resolutions": [
		      {"url": "https://preview.redd.it/a.jpg?width=320&amp;s=y", "width": 320, "height": 180},
		      {"url": "https://preview.redd.it/a.jpg?width=640&amp;s=z", "width": 640, "height": 360}
		    ]
		  }]}
		}}`,
		`{"kind": "t3", "data": {"id": "b", "name": "t3_b", "title": "Second", "thumbnail": "self"}}`,
		`{"kind": "t3", "data": {"id": "c", "name": "t3_c"}}`,
		`{"kind": "t1", "data": {"id": "d", "name": "t1_d", "title": "Wrong"}}`,
		`{"kind": "t3", "data": "broken"}`,
	)}

	vendor := &vendor.Vendor{Client: client, Subreddit: "pics"}
	page, err := vendor.FetchPosts(context.Background(), feed.Hot, "t3_x", 15)
	assert.Nil(t, err)
	assert.Equal(t, []string{"listing:pics:hot:t3_x"}, client.calls)
	assert.Equal(t, 3, page.Skipped)
	assert.Equal(t, 5, page.Received())
	if !assert.Len(t, page.Items, 2) {
		return
	}

	first := page.Items[0]
	assert.Equal(t, "a", first.UID)
	assert.Equal(t, "t3_a", first.FullName)
	assert.Equal(t, feed.Cursor("t3_a"), first.Cursor())
	assert.Equal(t, "alice", first.Author.String)
	assert.Equal(t, 10, first.Score)
	assert.Equal(t, int64(1600000000), first.PostedAt)
	assert.Equal(t, "https://reddit.com/r/all/comments/a/first/", first.Permalink)
	assert.Equal(t, "https://preview.redd.it/a.jpg?width=640&s=z", first.Thumbnail.URL.String)
	assert.Equal(t, int64(640), first.Thumbnail.Width.Int64)
	assert.Equal(t, int64(360), first.Thumbnail.Height.Int64)

	second := page.Items[1]
	assert.Equal(t, "b", second.UID)
	assert.False(t, second.Author.Valid)
	assert.False(t, second.Thumbnail.URL.Valid)
}

func TestVendor_FetchComments(t *testing.T) {
	client := &testClient{listing: listing(t,
		`{"kind": "t1", "data": {
		  "id": "c1", "name": "t1_c1", "body": "hello", "author": "bob", "score": 3, "created_utc": 1600000100.0,
		  "replies": {"kind": "Listing", "data": {"children": [
		    {"kind": "t1", "data": {"id": "r1"}},
		    {"kind": "more", "data": {"count": 2, "children": ["r2", "r3"]}}
		  ]}}
		}}`,
		`{"kind": "t1", "data": {"id": "c2", "name": "t1_c2", "body": "", "author": "[deleted]", "score": 0, "created_utc": 1600000000.0, "replies": ""}}`,
		`{"kind": "t1", "data": {"id": "c3", "name": "t1_c3", "body": "no score", "author": "eve", "created_utc": 1600000000.0}}`,
		`{"kind": "more", "data": {"count": 10, "children": ["x", "y"]}}`,
	)}

	vendor := &vendor.Vendor{Client: client}
	page, err := vendor.FetchComments(context.Background(), "abc", "", 15)
	assert.Nil(t, err)
	assert.Equal(t, []string{"comments:abc:"}, client.calls)
	assert.Equal(t, 2, page.Skipped)
	if !assert.Len(t, page.Items, 2) {
		return
	}

	assert.Equal(t, feed.Comment{
		UID:      "c1",
		FullName: "t1_c1",
		Body:     "hello",
		Author:   "bob",
		Score:    3,
		PostedAt: 1600000100,
		ReplyIDs: []string{"r1", "r2", "r3"},
	}, page.Items[0])

	assert.Equal(t, "", page.Items[1].Body)
	assert.Empty(t, page.Items[1].ReplyIDs)
}

func TestVendor_Errors(t *testing.T) {
	ctx := context.Background()
	for _, tt := range []struct {
		name    string
		err     error
		kind    feed.ErrorKind
		message string
	}{
		{
			name:    "request",
			err:     &reddit.RequestError{Err: errors.New("empty path element")},
			kind:    feed.InvalidRequest,
			message: feed.DefaultMessage,
		},
		{
			name:    "response",
			err:     &reddit.ResponseError{Err: errors.New("unexpected EOF")},
			kind:    feed.MalformedResponse,
			message: feed.DefaultMessage,
		},
		{
			name:    "status",
			err:     errors.Wrap(httpf.StatusCodeError{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}, "get listing"),
			kind:    feed.TransportFailure,
			message: "Reddit responded with 503 Service Unavailable.",
		},
		{
			name:    "network",
			err:     errors.Wrap(errors.New("Network unreachable"), "get listing"),
			kind:    feed.TransportFailure,
			message: "Network unreachable",
		},
		{
			name:    "url",
			err:     errors.Wrap(&url.Error{Op: "Get", URL: "https://www.reddit.com/r/all/new/.json", Err: errors.New("connection reset by peer")}, "get listing"),
			kind:    feed.TransportFailure,
			message: "connection reset by peer",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			vendor := &vendor.Vendor{Client: &testClient{err: tt.err}}
			_, err := vendor.FetchPosts(ctx, feed.New, "", 15)
			assert.Equal(t, tt.kind, feed.KindOf(err))
			assert.Equal(t, tt.message, feed.MessageOf(err))
			assert.True(t, errors.Is(err, tt.err))

			_, err = vendor.FetchComments(ctx, "abc", "", 15)
			assert.Equal(t, tt.kind, feed.KindOf(err))
		})
	}
}

func TestVendor_FetchPosts_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := &reddit.Client{
		HttpClient: server.Client(),
		Host:       server.URL,
		Config:     reddit.Config{Subreddit: "all"},
	}

	vendor := &vendor.Vendor{Client: client, Subreddit: "all"}
	_, err := vendor.FetchPosts(context.Background(), feed.Hot, "", 15)
	assert.Equal(t, feed.TransportFailure, feed.KindOf(err))
	assert.Contains(t, feed.MessageOf(err), "connection refused")
	assert.NotContains(t, feed.MessageOf(err), server.URL)
}

func TestVendor_FetchPosts_OptionalFields(t *testing.T) {
	const seed = `"thumbnail": "https://b.thumbs.redditmedia.com/x.jpg", "thumbnail_width": 140, "thumbnail_height": 78`
	for _, tt := range []struct {
		name   string
		fields string
		width  null.Int
		score  int
	}{
		{
			name:   "images is not an array",
			fields: seed + `, "score": 5, "preview": {"images": {}}`,
			width:  null.IntFrom(140),
			score:  5,
		},
		{
			name:   "preview is a string",
			fields: seed + `, "score": 5, "preview": "none"`,
			width:  null.IntFrom(140),
			score:  5,
		},
		{
			name:   "malformed resolutions",
			fields: seed + `, "score": 5, "preview": {"images": [{"source": 1, "resolutions": {"url": "x"}}, 7]}`,
			width:  null.IntFrom(140),
			score:  5,
		},
		{
			name:   "thumbnail width is not a number",
			fields: `"thumbnail": "https://b.thumbs.redditmedia.com/x.jpg", "thumbnail_width": "wide", "thumbnail_height": 78, "score": 5`,
			score:  5,
		},
		{
			name:   "score is not a number",
			fields: seed + `, "score": "many", "created_utc": "yesterday", "author": 42, "permalink": []`,
			width:  null.IntFrom(140),
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			client := &testClient{listing: listing(t,
				`{"kind": "t3", "data": {"id": "x", "name": "t3_x", "title": "X", `+tt.fields+`}}`)}

			vendor := &vendor.Vendor{Client: client}
			page, err := vendor.FetchPosts(context.Background(), feed.Top, "", 15)
			assert.Nil(t, err)
			assert.Equal(t, 0, page.Skipped)
			if !assert.Len(t, page.Items, 1) {
				return
			}

			post := page.Items[0]
			assert.Equal(t, "t3_x", post.FullName)
			assert.Equal(t, tt.score, post.Score)
			assert.Equal(t, "https://b.thumbs.redditmedia.com/x.jpg", post.Thumbnail.URL.String)
			assert.Equal(t, tt.width, post.Thumbnail.Width)
			assert.Equal(t, null.IntFrom(78), post.Thumbnail.Height)
		})
	}
}

func TestVendor_FetchPosts_EmptyTitle(t *testing.T) {
	client := &testClient{listing: listing(t,
		`{"kind": "t3", "data": {"id": "x", "name": "t3_x", "title": ""}}`,
		`{"kind": "t3", "data": {"id": "y", "name": "t3_y", "title": null}}`)}

	vendor := &vendor.Vendor{Client: client}
	page, err := vendor.FetchPosts(context.Background(), feed.Top, "", 15)
	assert.Nil(t, err)
	assert.Equal(t, 1, page.Skipped)
	if assert.Len(t, page.Items, 1) {
		assert.Equal(t, "", page.Items[0].Title)
	}
}

func TestThumbnailConfig_Resolver(t *testing.T) {
	resolver := vendor.ThumbnailConfig{}.Resolver()
	assert.Equal(t, feed.DefaultThumbnailResolver(), resolver)

	resolver = vendor.ThumbnailConfig{PreferredWidths: []int{320}, WidthTolerance: 10, AnimatedExts: []string{"mp4"}}.Resolver()
	assert.Equal(t, []int{320}, resolver.PreferredWidths)
	assert.Equal(t, 10, resolver.WidthTolerance)
	assert.Equal(t, []string{"mp4"}, resolver.AnimatedExts)
}
