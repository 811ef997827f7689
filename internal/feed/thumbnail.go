package feed

import (
	"net/url"
	"path"
	"strings"

	"github.com/jfk9w-go/flu/colf"
	"golang.org/x/net/html"
	"gopkg.in/guregu/null.v3"
)

var (
	DefaultPreferredWidths = []int{640, 960, 1020, 320}
	DefaultWidthTolerance  = 160
	DefaultAnimatedExts    = []string{"gif", "gifv"}
)

// ThumbnailResolver selects the best-fit preview image for a post.
// Resolution is pure and deterministic.
type ThumbnailResolver struct {
	// PreferredWidths are tried in order, the first one matching a candidate wins.
	PreferredWidths []int
	// WidthTolerance is the half-width of the (exclusive) band around a preferred width.
	WidthTolerance int
	// AnimatedExts contains lowercase url path extensions (without dot) which are never selected.
	AnimatedExts []string
}

// DefaultThumbnailResolver returns a resolver with default settings.
func DefaultThumbnailResolver() *ThumbnailResolver {
	return &ThumbnailResolver{
		PreferredWidths: DefaultPreferredWidths,
		WidthTolerance:  DefaultWidthTolerance,
		AnimatedExts:    DefaultAnimatedExts,
	}
}

// Resolve returns the first candidate matching preferred widths or the seed if none matches.
// Candidates without width or with invalid url are skipped.
func (r *ThumbnailResolver) Resolve(seed Thumbnail, candidates []Thumbnail) Thumbnail {
	if len(candidates) == 0 {
		return seed
	}

	animated := make(colf.Set[string], len(r.AnimatedExts))
	for _, ext := range r.AnimatedExts {
		animated.Add(strings.ToLower(strings.TrimPrefix(ext, ".")))
	}

	for _, preferred := range r.PreferredWidths {
		for _, candidate := range candidates {
			if !candidate.Width.Valid {
				continue
			}

			width := int(candidate.Width.Int64)
			if width <= preferred-r.WidthTolerance || width >= preferred+r.WidthTolerance {
				continue
			}

			link, ext, ok := parseImageURL(candidate.URL)
			if !ok || animated[ext] {
				continue
			}

			return Thumbnail{
				URL:    null.StringFrom(link),
				Width:  candidate.Width,
				Height: candidate.Height,
			}
		}
	}

	return seed
}

func parseImageURL(value null.String) (string, string, bool) {
	if !value.Valid {
		return "", "", false
	}

	raw := strings.TrimSpace(html.UnescapeString(value.String))
	if raw == "" {
		return "", "", false
	}

	link, err := url.Parse(raw)
	if err != nil || link.Path == "" {
		return "", "", false
	}

	return raw, strings.ToLower(strings.TrimPrefix(path.Ext(link.Path), ".")), true
}
