package feed

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/guregu/null.v3"
)

// Collection identifies a listing of /r/all.
type Collection string

const (
	Hot    Collection = "hot"
	New    Collection = "new"
	Top    Collection = "top"
	Rising Collection = "rising"
)

// Collections contains all supported collections in display order.
var Collections = []Collection{Hot, New, Top, Rising}

func ParseCollection(value string) (Collection, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, collection := range Collections {
		if string(collection) == value {
			return collection, nil
		}
	}

	return "", errors.Wrap(ErrUnknownFeed, value)
}

func (c Collection) String() string {
	return string(c)
}

// Cursor is the "after" token passed to upstream.
// It is equal to the full name of the last seen item. Empty cursor means "from the start".
type Cursor string

func (c Cursor) IsZero() bool {
	return c == ""
}

// Item is something which may be tracked in a feed.
type Item interface {
	Cursor() Cursor
}

type Thumbnail struct {
	URL    null.String `json:"url"`
	Width  null.Int    `json:"width"`
	Height null.Int    `json:"height"`
}

type Post struct {
	UID       string      `json:"uid"`
	FullName  string      `json:"fullName"`
	Title     string      `json:"title"`
	Author    null.String `json:"author"`
	Permalink string      `json:"permalink,omitempty"`
	Score     int         `json:"score"`
	PostedAt  int64       `json:"postedAt"`
	Thumbnail Thumbnail   `json:"thumbnail"`
}

func (p Post) Cursor() Cursor {
	return Cursor(p.FullName)
}

type Comment struct {
	UID      string   `json:"uid"`
	FullName string   `json:"fullName"`
	Body     string   `json:"body"`
	Author   string   `json:"author"`
	Score    int      `json:"score"`
	PostedAt int64    `json:"postedAt"`
	ReplyIDs []string `json:"replyIds"`
}

func (c Comment) Cursor() Cursor {
	return Cursor(c.FullName)
}

// Page is a single decoded upstream batch.
type Page[T Item] struct {
	Items []T
	// Skipped is the number of received records which were not decoded into items.
	Skipped int
}

// Received returns the number of records received from upstream.
func (p *Page[T]) Received() int {
	if p == nil {
		return 0
	}

	return len(p.Items) + p.Skipped
}

// Snapshot is the consistent view of a feed state.
type Snapshot[T Item] struct {
	Items     []T         `json:"items"`
	Loading   bool        `json:"loading"`
	LastError null.String `json:"lastError"`
	Pages     int         `json:"pages"`
	// HasNextPage is a best-effort guess: upstream does not report whether more items are available.
	HasNextPage bool `json:"hasNextPage"`
}

// Attempt is a journal record describing a single fetch.
type Attempt struct {
	ID         string      `gorm:"primaryKey" json:"id"`
	FeedID     string      `gorm:"not null;index" json:"feedId"`
	Cursor     null.String `json:"cursor"`
	Refresh    bool        `gorm:"not null" json:"refresh"`
	StartedAt  time.Time   `gorm:"not null;index" json:"startedAt"`
	FinishedAt time.Time   `gorm:"not null" json:"finishedAt"`
	Received   int         `gorm:"not null" json:"received"`
	Appended   int         `gorm:"not null" json:"appended"`
	Skipped    int         `gorm:"not null" json:"skipped"`
	Stale      bool        `gorm:"not null" json:"stale"`
	Error      null.String `json:"error"`
	ErrorCode  null.Int    `json:"errorCode"`
}

// PostsFeedID is the journal feed ID of the post collection.
func PostsFeedID(collection Collection) string {
	return "posts/" + collection.String()
}

// CommentsFeedID is the journal feed ID of the post comments.
func CommentsFeedID(postID string) string {
	return "comments/" + postID
}

func (a *Attempt) TableName() string {
	return "fetch_attempt"
}
