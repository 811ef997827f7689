package iface

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jfk9w/redditfeed/internal/feed"

	"golang.org/x/exp/utf8string"
)

const (
	maxTitleLength   = 120
	maxBodyLength    = 200
	maxMessageLength = 4000

	fire      = "🔥"
	hourglass = "⏳"
	warning   = "⚠️"
)

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	value := utf8string.NewString(text)
	if value.RuneCount() > limit {
		return value.Slice(0, limit-3) + "..."
	}

	return text
}

type message struct {
	b strings.Builder
}

func (m *message) line(format string, args ...any) bool {
	line := fmt.Sprintf(format, args...)
	if m.b.Len()+len(line)+1 > maxMessageLength {
		return false
	}

	if m.b.Len() > 0 {
		m.b.WriteRune('\n')
	}

	m.b.WriteString(line)
	return true
}

func (m *message) String() string {
	return m.b.String()
}

func formatStatus(m *message, loading bool, lastError string, hasNextPage bool) {
	switch {
	case loading:
		m.line("%s loading...", hourglass)
	case lastError != "":
		m.line("%s %s", warning, html.EscapeString(lastError))
	case hasNextPage:
		m.line("%s more available", fire)
	}
}

func formatPosts(collection feed.Collection, snapshot feed.Snapshot[feed.Post], offset int) string {
	m := new(message)
	m.line("<b>%s</b> – %d posts, %d pages", collection, len(snapshot.Items), snapshot.Pages)
	if offset > len(snapshot.Items) {
		offset = len(snapshot.Items)
	}

	for i, post := range snapshot.Items[offset:] {
		title := html.EscapeString(truncate(post.Title, maxTitleLength))
		if post.Permalink != "" {
			title = fmt.Sprintf(`<a href="%s">%s</a>`, post.Permalink, title)
		}

		if !m.line("%d. %s (%d, <code>%s</code>)", offset+i+1, title, post.Score, post.UID) {
			break
		}
	}

	formatStatus(m, snapshot.Loading, snapshot.LastError.String, snapshot.HasNextPage)
	return m.String()
}

func formatComments(postID string, snapshot feed.Snapshot[feed.Comment], offset int) string {
	m := new(message)
	m.line("<b>%s</b> – %d comments", html.EscapeString(postID), len(snapshot.Items))
	if offset > len(snapshot.Items) {
		offset = len(snapshot.Items)
	}

	for _, comment := range snapshot.Items[offset:] {
		body := html.EscapeString(truncate(comment.Body, maxBodyLength))
		if !m.line("<i>%s</i> (%d): %s", html.EscapeString(comment.Author), comment.Score, body) {
			break
		}
	}

	formatStatus(m, snapshot.Loading, snapshot.LastError.String, snapshot.HasNextPage)
	return m.String()
}

func formatAttempts(feedID string, attempts []feed.Attempt) string {
	m := new(message)
	m.line("<b>%s</b> – %d attempts", html.EscapeString(feedID), len(attempts))
	for _, attempt := range attempts {
		status := "ok"
		switch {
		case attempt.Stale:
			status = "stale"
		case attempt.Error.Valid:
			status = html.EscapeString(truncate(attempt.Error.String, maxBodyLength))
		}

		kind := "next"
		if attempt.Refresh {
			kind = "refresh"
		}

		if !m.line("%s %s: %d received, %d appended, %d skipped in %s – %s",
			attempt.StartedAt.Format(time.RFC3339), kind,
			attempt.Received, attempt.Appended, attempt.Skipped,
			attempt.FinishedAt.Sub(attempt.StartedAt).Round(time.Millisecond), status) {
			break
		}
	}

	return m.String()
}
