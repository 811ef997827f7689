package reddit

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jfk9w/redditfeed/internal/3rdparty/reddit"
	"github.com/jfk9w/redditfeed/internal/feed"

	"github.com/jfk9w-go/flu/colf"
	"github.com/jfk9w-go/flu/logf"
	"github.com/pkg/errors"
	"gopkg.in/guregu/null.v3"
)

// Reddit uses these values in place of thumbnail urls.
var placeholderThumbnails = colf.Set[string]{
	"self":    true,
	"default": true,
	"nsfw":    true,
	"spoiler": true,
	"image":   true,
}

func decodeFailure(format string, args ...any) error {
	return feed.NewError(feed.DecodeFailure, "", errors.Errorf(format, args...))
}

func (v *Vendor) decodePosts(ctx context.Context, things []reddit.Thing) *feed.Page[feed.Post] {
	page := &feed.Page[feed.Post]{Items: make([]feed.Post, 0, len(things))}
	for i, thing := range things {
		post, err := v.DecodePost(thing)
		if err != nil {
			logf.Get(v).Warnf(ctx, "skip post %d: %v", i, err)
			page.Skipped++
			continue
		}

		page.Items = append(page.Items, post)
	}

	return page
}

func (v *Vendor) decodeComments(ctx context.Context, things []reddit.Thing) *feed.Page[feed.Comment] {
	page := &feed.Page[feed.Comment]{Items: make([]feed.Comment, 0, len(things))}
	for i, thing := range things {
		if thing.Kind == reddit.MoreKind {
			logf.Get(v).Tracef(ctx, "skip more record %d", i)
			page.Skipped++
			continue
		}

		comment, err := DecodeComment(thing)
		if err != nil {
			logf.Get(v).Warnf(ctx, "skip comment %d: %v", i, err)
			page.Skipped++
			continue
		}

		page.Items = append(page.Items, comment)
	}

	return page
}

// DecodePost validates and converts a raw post record.
// Required fields are id, name and title. Other fields are optional:
// values of unexpected type are treated as absent.
func (v *Vendor) DecodePost(thing reddit.Thing) (feed.Post, error) {
	if thing.Kind != reddit.PostKind {
		return feed.Post{}, decodeFailure("unexpected kind %q", thing.Kind)
	}

	var data reddit.PostData
	if err := json.Unmarshal(thing.Data, &data); err != nil {
		return feed.Post{}, feed.NewError(feed.DecodeFailure, "", err)
	}

	switch {
	case data.ID.String == "":
		return feed.Post{}, decodeFailure("missing id")
	case data.Name.String == "":
		return feed.Post{}, decodeFailure("missing name")
	case !data.Title.Valid:
		return feed.Post{}, decodeFailure("missing title")
	}

	author := data.Author.AsString()
	return feed.Post{
		UID:       data.ID.String,
		FullName:  data.Name.String,
		Title:     data.Title.String,
		Author:    null.NewString(author.String, author.String != ""),
		Permalink: data.PermalinkURL(),
		Score:     int(data.Score.AsInt().Int64),
		PostedAt:  data.CreatedSecs.AsInt().Int64,
		Thumbnail: v.thumbnail(data),
	}, nil
}

func (v *Vendor) thumbnail(data reddit.PostData) feed.Thumbnail {
	seed := feed.Thumbnail{
		URL:    data.Thumbnail.AsString(),
		Width:  data.ThumbnailWidth.AsInt(),
		Height: data.ThumbnailHeight.AsInt(),
	}

	if url := strings.TrimSpace(seed.URL.String); url == "" || placeholderThumbnails[url] {
		seed.URL = null.String{}
	}

	resolver := v.Thumbnails
	if resolver == nil {
		resolver = feed.DefaultThumbnailResolver()
	}

	images := data.Candidates()
	candidates := make([]feed.Thumbnail, len(images))
	for i, image := range images {
		candidates[i] = feed.Thumbnail{
			URL:    image.URL.AsString(),
			Width:  image.Width.AsInt(),
			Height: image.Height.AsInt(),
		}
	}

	return resolver.Resolve(seed, candidates)
}

// DecodeComment validates and converts a raw comment record.
// Required fields are id, name, body, author, score and created_utc.
func DecodeComment(thing reddit.Thing) (feed.Comment, error) {
	if thing.Kind != reddit.CommentKind {
		return feed.Comment{}, decodeFailure("unexpected kind %q", thing.Kind)
	}

	var data reddit.CommentData
	if err := json.Unmarshal(thing.Data, &data); err != nil {
		return feed.Comment{}, feed.NewError(feed.DecodeFailure, "", err)
	}

	for field, value := range map[string]null.String{
		"id":     data.ID,
		"name":   data.Name,
		"body":   data.Body,
		"author": data.Author,
	} {
		if !value.Valid {
			return feed.Comment{}, decodeFailure("missing %s", field)
		}
	}

	if data.ID.String == "" || data.Name.String == "" {
		return feed.Comment{}, decodeFailure("empty id")
	}

	if !data.Score.Valid {
		return feed.Comment{}, decodeFailure("missing score")
	}

	if !data.CreatedSecs.Valid {
		return feed.Comment{}, decodeFailure("missing created_utc")
	}

	return feed.Comment{
		UID:      data.ID.String,
		FullName: data.Name.String,
		Body:     data.Body.String,
		Author:   data.Author.String,
		Score:    int(data.Score.Int64),
		PostedAt: int64(data.CreatedSecs.Float64),
		ReplyIDs: data.ReplyIDs(),
	}, nil
}
