package core

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/jfk9w/redditfeed/internal/core/internal/api"

	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
)

type HTTPConfig struct {
	Address     string       `yaml:"address,omitempty" doc:"HTTP API listen address. API is disabled if empty." example:"localhost:8080"`
	WaitTimeout flu.Duration `yaml:"waitTimeout,omitempty" format:"duration" doc:"Maximum time to wait for fetch completion when 'wait' query parameter is set." default:"\"30s\""`
}

type HTTPContext interface {
	TrackerContext
	HTTPConfig() HTTPConfig
}

// HTTP serves the JSON API for feed trackers.
type HTTP[C HTTPContext] struct {
	server *http.Server
}

func (h HTTP[C]) String() string {
	return api.ServiceID
}

func (h *HTTP[C]) Include(ctx context.Context, app apfel.MixinApp[C]) error {
	config := app.Config().HTTPConfig()
	if config.Address == "" {
		return apfel.ErrDisabled
	}

	var tracker Tracker[C]
	if err := app.Use(ctx, &tracker, false); err != nil {
		return err
	}

	handler := &api.Handler{
		Posts:       tracker.Posts,
		Comments:    tracker.Comments,
		Collections: tracker.Posts.Keys,
		WaitTimeout: config.WaitTimeout.Value,
	}

	if tracker.Storage != nil {
		handler.Journal = tracker.Storage
	}

	listener, err := net.Listen("tcp", config.Address)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", config.Address)
	}

	h.server = &http.Server{
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := app.Manage(ctx, h); err != nil {
		flu.CloseQuietly(listener)
		return err
	}

	_, _ = syncf.Go(context.Background(), func(ctx context.Context) {
		err := h.server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}

		logf.Get(h).Resultf(ctx, logf.Debug, logf.Warn, "http server completed with %v", err)
	})

	logf.Get(h).Infof(ctx, "listening on %s", listener.Addr())
	return nil
}

func (h *HTTP[C]) Close() error {
	if h.server == nil {
		return nil
	}

	ctx, cancel := syncf.Timeout(10 * time.Second)(context.Background())
	defer cancel()
	return h.server.Shutdown(ctx)
}
