package reddit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jfk9w/redditfeed/internal/3rdparty/reddit"

	"github.com/jfk9w-go/flu/httpf"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

const listingJSON = `{
  "kind": "Listing",
  "data": {
    "after": "t3_b",
    "children": [
      {"kind": "t3", "data": {"id": "a", "name": "t3_a", "title": "A"}},
      {"kind": "t3", "data": {"id": "b", "name": "t3_b", "title": "B"}}
    ]
  }
}`

const commentsJSON = `[
  {"kind": "Listing", "data": {"children": [{"kind": "t3", "data": {"id": "abc", "name": "t3_abc", "title": "Post"}}]}},
  {"kind": "Listing", "data": {"children": [
    {"kind": "t1", "data": {"id": "c1", "name": "t1_c1", "body": "hi", "author": "u", "score": 1, "created_utc": 1600000000.0, "replies": ""}}
  ]}}
]`

func newServer(t *testing.T, handler http.HandlerFunc) (*reddit.Client, func()) {
	server := httptest.NewServer(handler)
	return &reddit.Client{
		HttpClient: server.Client(),
		Host:       server.URL,
		Config:     reddit.Config{Subreddit: "all"},
	}, server.Close
}

func TestClient_GetListing(t *testing.T) {
	client, done := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/all/hot/.json", r.URL.Path)
		assert.Equal(t, "15", r.URL.Query().Get("limit"))
		assert.Equal(t, "t3_x", r.URL.Query().Get("after"))
		assert.Equal(t, "1", r.URL.Query().Get("raw_json"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(listingJSON))
	})

	defer done()

	listing, err := client.GetListing(context.Background(), "", "hot", "t3_x", 15)
	assert.Nil(t, err)
	assert.Len(t, listing.Data.Children, 2)
	assert.Equal(t, "t3", listing.Data.Children[0].Kind)
}

func TestClient_GetListing_NoCursor(t *testing.T) {
	client, done := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()["after"]
		assert.False(t, ok)
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(listingJSON))
	})

	defer done()

	_, err := client.GetListing(context.Background(), "all", "new", "", 0)
	assert.Nil(t, err)
}

func TestClient_GetComments(t *testing.T) {
	client, done := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/all/comments/abc/.json", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("include_facets"))
		assert.Equal(t, "t1_c0", r.URL.Query().Get("after"))
		_, _ = w.Write([]byte(commentsJSON))
	})

	defer done()

	listing, err := client.GetComments(context.Background(), "abc", "t1_c0", 15)
	assert.Nil(t, err)
	if assert.Len(t, listing.Data.Children, 1) {
		assert.Equal(t, reddit.CommentKind, listing.Data.Children[0].Kind)
	}
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	for _, tt := range []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "status",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var statusErr httpf.StatusCodeError
				assert.True(t, errors.As(err, &statusErr))
				assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
			},
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   `{"data": `,
			check: func(t *testing.T, err error) {
				var responseErr *reddit.ResponseError
				assert.True(t, errors.As(err, &responseErr))
			},
		},
		{
			name:   "no children",
			status: http.StatusOK,
			body:   `{"kind": "Listing", "data": {}}`,
			check: func(t *testing.T, err error) {
				var responseErr *reddit.ResponseError
				assert.True(t, errors.As(err, &responseErr))
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			client, done := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			defer done()

			_, err := client.GetListing(ctx, "all", "top", "", 15)
			assert.NotNil(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_CommentsShape(t *testing.T) {
	client, done := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"kind": "Listing", "data": {"children": []}}]`))
	})

	defer done()

	_, err := client.GetComments(context.Background(), "abc", "", 15)
	var responseErr *reddit.ResponseError
	assert.True(t, errors.As(err, &responseErr))
}

func TestClient_InvalidRequest(t *testing.T) {
	client, done := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	})

	defer done()

	for _, postID := range []string{"", "a/b"} {
		_, err := client.GetComments(context.Background(), postID, "", 15)
		var requestErr *reddit.RequestError
		assert.True(t, errors.As(err, &requestErr), postID)
	}

	client = &reddit.Client{Host: "://broken"}
	_, err := client.GetListing(context.Background(), "all", "hot", "", 15)
	var requestErr *reddit.RequestError
	assert.True(t, errors.As(err, &requestErr))
}

func TestClient_OAuth(t *testing.T) {
	var (
		tokens   int32
		requests int32
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", username)
		assert.Equal(t, "secret", password)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		atomic.AddInt32(&tokens, 1)
		_, _ = w.Write([]byte(`{"access_token": "token", "expires_in": 3600}`))
	})

	mux.HandleFunc("/r/all/rising", func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&requests, 1) {
		case 1:
			w.WriteHeader(http.StatusUnauthorized)
		case 2:
			w.Header().Set("X-Ratelimit-Reset", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(listingJSON))
		}
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := &reddit.Client{
		HttpClient:   server.Client(),
		Host:         server.URL,
		AuthEndpoint: server.URL + "/token",
		Config: reddit.Config{
			ClientID:     "id",
			ClientSecret: "secret",
			Username:     "user",
			Password:     "pass",
			MaxRetries:   3,
		},
	}

	listing, err := client.GetListing(context.Background(), "all", "rising", "", 15)
	assert.Nil(t, err)
	assert.Len(t, listing.Data.Children, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokens))
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "redditfeed/dev", reddit.UserAgent("dev", reddit.Config{}))
	assert.Equal(t, "redditfeed/dev by /u/me", reddit.UserAgent("dev", reddit.Config{Username: "me"}))
	assert.Equal(t, "redditfeed/dev by /u/owner", reddit.UserAgent("dev", reddit.Config{Username: "me", Owner: "owner"}))
}
