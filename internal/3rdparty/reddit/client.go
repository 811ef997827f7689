package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/httpf"
	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
)

var (
	Host         = "https://oauth.reddit.com"
	PublicHost   = "https://www.reddit.com"
	AuthEndpoint = "https://www.reddit.com/api/v1/access_token"
)

// DefaultLimit is used when limit is not positive.
const DefaultLimit = 20

type Config struct {
	ClientID     string       `yaml:"clientId,omitempty" doc:"See https://github.com/reddit-archive/reddit/wiki/OAuth2-Quick-Start-Example. If empty, public JSON endpoints are used."`
	ClientSecret string       `yaml:"clientSecret,omitempty" doc:"See https://github.com/reddit-archive/reddit/wiki/OAuth2-Quick-Start-Example"`
	Username     string       `yaml:"username,omitempty" doc:"See https://github.com/reddit-archive/reddit/wiki/OAuth2-Quick-Start-Example"`
	Password     string       `yaml:"password,omitempty" doc:"See https://github.com/reddit-archive/reddit/wiki/OAuth2-Quick-Start-Example"`
	Owner        string       `yaml:"owner,omitempty" doc:"This value will be used in User-Agent header. If empty, username will be used."`
	Subreddit    string       `yaml:"subreddit,omitempty" doc:"Subreddit to read listings from." default:"all"`
	MaxRetries   int          `yaml:"maxRetries,omitempty" doc:"Maximum request retries on authorization and rate limit errors before giving up." default:"3"`
	Timeout      flu.Duration `yaml:"timeout,omitempty" format:"duration" doc:"HTTP request timeout." default:"\"30s\""`
}

// Anonymous returns true if OAuth credentials are not configured.
func (c Config) Anonymous() bool {
	return c.ClientID == ""
}

type Context interface {
	RedditConfig() Config
}

// Mixin provides Client to the application.
type Mixin[C Context] struct {
	*Client
}

func (m Mixin[C]) String() string {
	return "reddit.client"
}

func (m *Mixin[C]) Include(ctx context.Context, app apfel.MixinApp[C]) error {
	if m.Client != nil {
		return nil
	}

	config := app.Config().RedditConfig()
	m.Client = &Client{
		HttpClient: &http.Client{
			Transport: withUserAgent(httpf.NewDefaultTransport(), UserAgent(app.Version(), config)),
			Timeout:   config.Timeout.Value,
		},
		Config: config,
		Clock:  app,
	}

	return nil
}

// UserAgent formats User-Agent header value as per reddit API rules.
func UserAgent(version string, config Config) string {
	owner := config.Owner
	if owner == "" {
		owner = config.Username
	}

	if owner == "" {
		return fmt.Sprintf(`redditfeed/%s`, version)
	}

	return fmt.Sprintf(`redditfeed/%s by /u/%s`, version, owner)
}

// Client is a reddit.com JSON API client.
// It uses OAuth if credentials are set and public endpoints otherwise.
type Client struct {
	HttpClient httpf.Client
	Config     Config
	Clock      syncf.Clock
	// Host overrides the API host.
	Host string
	// AuthEndpoint overrides the OAuth token endpoint.
	AuthEndpoint string

	token     chan string
	expiresAt time.Time
	once      sync.Once
}

func (c *Client) String() string {
	return "reddit.client"
}

func (c *Client) init() {
	c.once.Do(func() {
		c.token = make(chan string, 1)
		c.token <- ""
		if c.HttpClient == nil {
			c.HttpClient = http.DefaultClient
		}

		if c.Clock == nil {
			c.Clock = syncf.DefaultClock
		}

		if c.Host == "" {
			if c.Config.Anonymous() {
				c.Host = PublicHost
			} else {
				c.Host = Host
			}
		}

		if c.AuthEndpoint == "" {
			c.AuthEndpoint = AuthEndpoint
		}

		if c.Config.Subreddit == "" {
			c.Config.Subreddit = "all"
		}
	})
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.HttpClient.Do(req)
	logf.Get(c).Resultf(req.Context(), logf.Trace, logf.Warn, "%s => %v", &httpf.RequestBuilder{Request: req}, err)
	return resp, err
}

func (c *Client) getToken(ctx context.Context) (string, error) {
	select {
	case token := <-c.token:
		return token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) done(token string) {
	c.token <- token
}

func (c *Client) authorize(ctx context.Context) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}

	if err := httpf.POST(c.AuthEndpoint, nil).
		Auth(httpf.Basic(c.Config.ClientID, c.Config.ClientSecret)).
		Query("grant_type", "password").
		Query("username", c.Config.Username).
		Query("password", c.Config.Password).
		Exchange(ctx, c).
		CheckStatus(http.StatusOK).
		DecodeBody(flu.JSON(&resp)).
		Error(); err != nil {
		return "", err
	}

	c.expiresAt = c.Clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).Add(-time.Minute)
	return resp.AccessToken, nil
}

var (
	errUnauthorized = errors.New("unauthorized")
	errRateLimited  = errors.New("rate-limited")
)

func (c *Client) execute(ctx context.Context, req *httpf.RequestBuilder, result any) error {
	var (
		token string
		err   error
	)

	if !c.Config.Anonymous() {
		token, err = c.getToken(ctx)
		if err != nil {
			return err
		}

		defer func() { c.done(token) }()
	}

	for i := 0; i < c.Config.MaxRetries+1; i++ {
		if !c.Config.Anonymous() {
			if token == "" || c.expiresAt.Before(c.Clock.Now()) {
				token, err = c.authorize(ctx)
				logf.Get(c).Resultf(ctx, logf.Debug, logf.Error, "refresh token: %v", err)
				if err != nil {
					return errors.Wrap(err, "authorize")
				}
			}

			req = req.Auth(httpf.Bearer(token))
		}

		resp := req.Exchange(ctx, c).
			HandleFunc(func(resp *http.Response) error {
				switch resp.StatusCode {
				case http.StatusUnauthorized:
					if c.Config.Anonymous() {
						return nil
					}

					token = ""
					return errUnauthorized

				case http.StatusTooManyRequests:
					resetAfter := time.Second
					if resetValue := resp.Header.Get("X-Ratelimit-Reset"); resetValue != "" {
						reset, err := strconv.ParseFloat(resetValue, 64)
						if err != nil {
							return errors.Wrapf(err, "parse reset header: %s", resetValue)
						}

						resetAfter = time.Duration(reset * float64(time.Second))
					}

					logf.Get(c).Warnf(ctx, "request overflow, sleeping for %s", resetAfter)
					if err := flu.Sleep(ctx, resetAfter); err != nil {
						return err
					}

					return errRateLimited

				default:
					return nil
				}
			}).
			CheckStatus(http.StatusOK)

		if result != nil {
			resp.HandleFunc(func(resp *http.Response) error {
				if err := flu.DecodeFrom(flu.IO{R: resp.Body}, flu.JSON(result)); err != nil {
					return &ResponseError{Err: err}
				}

				return nil
			})
		}

		err = resp.Error()
		switch err {
		case nil:
			return nil
		case errUnauthorized, errRateLimited:
			continue
		default:
			return err
		}
	}

	return err
}

func (c *Client) request(path ...string) (*httpf.RequestBuilder, error) {
	for i, element := range path {
		if element == "" || strings.Contains(element, "/") {
			return nil, &RequestError{Err: errors.Errorf("invalid path element %q", element)}
		}

		path[i] = url.PathEscape(element)
	}

	resource := c.Host + "/" + strings.Join(path, "/")
	if c.Config.Anonymous() {
		resource += "/.json"
	}

	link, err := url.Parse(resource)
	if err != nil {
		return nil, &RequestError{Err: err}
	}

	if link.Scheme == "" || link.Host == "" {
		return nil, &RequestError{Err: errors.Errorf("invalid resource %q", resource)}
	}

	return httpf.GET(link.String()).
		Query("raw_json", "1"), nil
}

// GetListing fetches a page of subreddit listing sorted by sort.
func (c *Client) GetListing(ctx context.Context, subreddit, sort, after string, limit int) (*Listing, error) {
	c.init()
	if limit <= 0 {
		limit = DefaultLimit
	}

	if subreddit == "" {
		subreddit = c.Config.Subreddit
	}

	req, err := c.request("r", subreddit, sort)
	if err != nil {
		return nil, err
	}

	req = req.Query("limit", strconv.Itoa(limit))
	if after != "" {
		req = req.Query("after", after)
	}

	var resp Listing
	if err := c.execute(ctx, req, &resp); err != nil {
		return nil, errors.Wrap(err, "get listing")
	}

	if err := resp.validate(); err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetComments fetches a page of top-level comments for the post.
func (c *Client) GetComments(ctx context.Context, postID, after string, limit int) (*Listing, error) {
	c.init()
	if limit <= 0 {
		limit = DefaultLimit
	}

	req, err := c.request("r", c.Config.Subreddit, "comments", postID)
	if err != nil {
		return nil, err
	}

	req = req.
		Query("limit", strconv.Itoa(limit)).
		Query("include_facets", "false")
	if after != "" {
		req = req.Query("after", after)
	}

	var resp []Listing
	if err := c.execute(ctx, req, &resp); err != nil {
		return nil, errors.Wrap(err, "get comments")
	}

	if len(resp) < 2 {
		return nil, &ResponseError{Err: errors.Errorf("expected post and comment listings, got %d", len(resp))}
	}

	comments := &resp[1]
	if err := comments.validate(); err != nil {
		return nil, err
	}

	return comments, nil
}

func withUserAgent(rt http.RoundTripper, userAgent string) httpf.RoundTripperFunc {
	return func(req *http.Request) (*http.Response, error) {
		req.Header.Set("User-Agent", userAgent)
		return rt.RoundTrip(req)
	}
}
