package reddit

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"gopkg.in/guregu/null.v3"
)

const (
	CommentKind = "t1"
	PostKind    = "t3"
	MoreKind    = "more"
)

// Thing is a raw listing child. Data is decoded depending on Kind.
type Thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type Listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []Thing `json:"children"`
	} `json:"data"`
}

func (l *Listing) validate() error {
	if l.Data.Children == nil {
		return &ResponseError{Err: errors.New("no data.children in listing")}
	}

	return nil
}

// Optional is a raw JSON value which is decoded on access.
// Values of unexpected type are treated as absent.
type Optional []byte

func (o *Optional) UnmarshalJSON(data []byte) error {
	*o = append((*o)[:0], data...)
	return nil
}

func (o Optional) decode(value any) bool {
	data := bytes.TrimSpace(o)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return false
	}

	return json.Unmarshal(data, value) == nil
}

func (o Optional) AsString() null.String {
	var value string
	if !o.decode(&value) {
		return null.String{}
	}

	return null.StringFrom(value)
}

func (o Optional) AsInt() null.Int {
	var value float64
	if !o.decode(&value) {
		return null.Int{}
	}

	return null.IntFrom(int64(value))
}

type Image struct {
	URL    Optional `json:"url"`
	Width  Optional `json:"width"`
	Height Optional `json:"height"`
}

type PostData struct {
	ID              null.String `json:"id"`
	Name            null.String `json:"name"`
	Title           null.String `json:"title"`
	Author          Optional    `json:"author"`
	Permalink       Optional    `json:"permalink"`
	Score           Optional    `json:"score"`
	CreatedSecs     Optional    `json:"created_utc"`
	Thumbnail       Optional    `json:"thumbnail"`
	ThumbnailWidth  Optional    `json:"thumbnail_width"`
	ThumbnailHeight Optional    `json:"thumbnail_height"`
	Preview         Optional    `json:"preview"`
}

func (d PostData) PermalinkURL() string {
	permalink := d.Permalink.AsString().String
	if permalink == "" {
		return ""
	}

	return "https://reddit.com" + permalink
}

// Candidates returns all preview images in order: source first, then resolutions.
// Malformed parts of the preview are skipped.
func (d PostData) Candidates() []Image {
	var preview struct {
		Images []Optional `json:"images"`
	}

	candidates := make([]Image, 0)
	if !d.Preview.decode(&preview) {
		return candidates
	}

	for _, data := range preview.Images {
		var image struct {
			Source      Optional `json:"source"`
			Resolutions Optional `json:"resolutions"`
		}

		if !data.decode(&image) {
			continue
		}

		var source Image
		if image.Source.decode(&source) {
			candidates = append(candidates, source)
		}

		var resolutions []Optional
		image.Resolutions.decode(&resolutions)
		for _, data := range resolutions {
			var resolution Image
			if data.decode(&resolution) {
				candidates = append(candidates, resolution)
			}
		}
	}

	return candidates
}

type CommentData struct {
	ID          null.String     `json:"id"`
	Name        null.String     `json:"name"`
	Body        null.String     `json:"body"`
	Author      null.String     `json:"author"`
	Score       null.Int        `json:"score"`
	CreatedSecs null.Float      `json:"created_utc"`
	Replies     json.RawMessage `json:"replies"`
}

// ReplyIDs returns ids of direct replies, including the ones which are collapsed into "more" records.
func (d CommentData) ReplyIDs() []string {
	ids := make([]string, 0)
	replies := bytes.TrimSpace(d.Replies)
	if len(replies) == 0 || replies[0] != '{' {
		return ids
	}

	var listing Listing
	if err := json.Unmarshal(replies, &listing); err != nil {
		return ids
	}

	for _, child := range listing.Data.Children {
		switch child.Kind {
		case MoreKind:
			var more MoreData
			if err := json.Unmarshal(child.Data, &more); err == nil {
				ids = append(ids, more.Children...)
			}

		default:
			var reply struct {
				ID string `json:"id"`
			}

			if err := json.Unmarshal(child.Data, &reply); err == nil && reply.ID != "" {
				ids = append(ids, reply.ID)
			}
		}
	}

	return ids
}

// MoreData is a placeholder for comments not included in the listing.
type MoreData struct {
	Count    int      `json:"count"`
	Children []string `json:"children"`
}
