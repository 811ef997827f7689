// Package api provides the HTTP interface for feed trackers.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jfk9w/redditfeed/internal/feed"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
)

const ServiceID = "core.api"

// DefaultWaitTimeout limits how long a request waits for fetch completion.
var DefaultWaitTimeout = 30 * time.Second

// Journal is the read side of the fetch attempt journal.
type Journal interface {
	ListAttempts(ctx context.Context, feedID string, limit int) ([]feed.Attempt, error)
	GetAttempt(ctx context.Context, id string) (*feed.Attempt, error)
	DeleteAttempts(ctx context.Context, feedID string) (int64, error)
}

type Handler struct {
	Posts       feed.PostTracker
	Comments    feed.CommentTracker
	Journal     Journal
	Collections []feed.Collection
	WaitTimeout time.Duration
}

func (h *Handler) String() string {
	return ServiceID
}

// Router returns the HTTP routes for this handler.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/feeds", func(r chi.Router) {
		r.Get("/", h.listFeeds)
		r.Route("/{collection}", func(r chi.Router) {
			r.Get("/", h.postSnapshot)
			r.Delete("/", h.resetPosts)
			r.Post("/next", h.fetchPosts(false))
			r.Post("/refresh", h.fetchPosts(true))
			r.Get("/attempts", h.listAttempts(postsFeedID))
			r.Delete("/attempts", h.deleteAttempts(postsFeedID))
		})
	})

	r.Route("/posts/{postID}/comments", func(r chi.Router) {
		r.Get("/", h.commentSnapshot)
		r.Delete("/", h.resetComments)
		r.Post("/next", h.fetchComments(false))
		r.Post("/refresh", h.fetchComments(true))
		r.Get("/attempts", h.listAttempts(commentsFeedID))
		r.Delete("/attempts", h.deleteAttempts(commentsFeedID))
	})

	r.Get("/attempts/{attemptID}", h.getAttempt)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		level := logf.Debug
		if ww.Status() >= http.StatusInternalServerError {
			level = logf.Warn
		}

		logf.Get(h).Logf(r.Context(), level, "%s %s [%s]: %d in %s",
			r.Method, r.URL.RequestURI(), middleware.GetReqID(r.Context()), ww.Status(), time.Since(started))
	})
}

func (h *Handler) listFeeds(w http.ResponseWriter, r *http.Request) {
	collections := h.Collections
	if collections == nil {
		collections = feed.Collections
	}

	h.respond(w, r, http.StatusOK, map[string]any{"collections": collections})
}

func (h *Handler) postSnapshot(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collection(w, r)
	if !ok {
		return
	}

	snapshot, err := h.Posts.Snapshot(r.Context(), collection)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, snapshot)
}

func (h *Handler) commentSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.Comments.Snapshot(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, snapshot)
}

func (h *Handler) resetPosts(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collection(w, r)
	if !ok {
		return
	}

	if err := h.Posts.Reset(r.Context(), collection); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resetComments(w http.ResponseWriter, r *http.Request) {
	if err := h.Comments.Reset(r.Context(), chi.URLParam(r, "postID")); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fetchPosts(refresh bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection, ok := h.collection(w, r)
		if !ok {
			return
		}

		start := h.Posts.FetchNext
		if refresh {
			start = h.Posts.Refresh
		}

		ref, err := start(r.Context(), collection)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		if wait(r) {
			respondRef(h, w, r, ref)
			return
		}

		snapshot, err := h.Posts.Snapshot(r.Context(), collection)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		h.respond(w, r, http.StatusAccepted, snapshot)
	}
}

func (h *Handler) fetchComments(refresh bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID := chi.URLParam(r, "postID")
		start := h.Comments.FetchNext
		if refresh {
			start = h.Comments.Refresh
		}

		ref, err := start(r.Context(), postID)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		if wait(r) {
			respondRef(h, w, r, ref)
			return
		}

		snapshot, err := h.Comments.Snapshot(r.Context(), postID)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		h.respond(w, r, http.StatusAccepted, snapshot)
	}
}

func respondRef[T feed.Item](h *Handler, w http.ResponseWriter, r *http.Request, ref syncf.Ref[feed.Snapshot[T]]) {
	timeout := h.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	snapshot, err := ref.Get(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, snapshot)
}

func (h *Handler) listAttempts(feedID func(r *http.Request) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.Journal == nil {
			h.fail(w, r, errJournalDisabled)
			return
		}

		id, err := feedID(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		var limit int
		if value := r.URL.Query().Get("limit"); value != "" {
			limit, err = strconv.Atoi(value)
			if err != nil || limit < 0 {
				h.respondError(w, r, http.StatusBadRequest, "invalid limit: "+value)
				return
			}
		}

		attempts, err := h.Journal.ListAttempts(r.Context(), id, limit)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		h.respond(w, r, http.StatusOK, map[string]any{"feedId": id, "attempts": attempts})
	}
}

func (h *Handler) deleteAttempts(feedID func(r *http.Request) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.Journal == nil {
			h.fail(w, r, errJournalDisabled)
			return
		}

		id, err := feedID(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		deleted, err := h.Journal.DeleteAttempts(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		h.respond(w, r, http.StatusOK, map[string]any{"feedId": id, "deleted": deleted})
	}
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	if h.Journal == nil {
		h.fail(w, r, errJournalDisabled)
		return
	}

	attempt, err := h.Journal.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, attempt)
}

func (h *Handler) collection(w http.ResponseWriter, r *http.Request) (feed.Collection, bool) {
	collection, err := feed.ParseCollection(chi.URLParam(r, "collection"))
	if err != nil {
		h.fail(w, r, err)
		return "", false
	}

	return collection, true
}

func postsFeedID(r *http.Request) (string, error) {
	collection, err := feed.ParseCollection(chi.URLParam(r, "collection"))
	if err != nil {
		return "", err
	}

	return feed.PostsFeedID(collection), nil
}

func commentsFeedID(r *http.Request) (string, error) {
	return feed.CommentsFeedID(chi.URLParam(r, "postID")), nil
}

func wait(r *http.Request) bool {
	value, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return value
}

var errJournalDisabled = errors.New("fetch attempt journal is disabled")

// Error is the response body for failed requests.
type Error struct {
	Error string `json:"error"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, feed.ErrUnknownFeed), errors.Is(err, feed.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, feed.ErrLoading), errors.Is(err, feed.ErrStale):
		status = http.StatusConflict
	case errors.Is(err, feed.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, errJournalDisabled):
		status = http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case syncf.IsContextRelated(err):
		// client is gone
		return
	}

	h.respondError(w, r, status, err.Error())
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.respond(w, r, status, Error{Error: message})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := flu.EncodeTo(flu.JSON(value), flu.IO{W: w}); err != nil {
		logf.Get(h).Warnf(r.Context(), "write response for %s: %v", r.URL.Path, err)
	}
}
