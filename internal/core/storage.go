package core

import (
	"context"

	"github.com/jfk9w/redditfeed/internal/core/internal/storage"
	"github.com/jfk9w/redditfeed/internal/feed"

	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/logf"
	"github.com/pkg/errors"
)

type StorageService interface {
	feed.Journal
	GetAttempt(ctx context.Context, id string) (*feed.Attempt, error)
	DeleteAttempts(ctx context.Context, feedID string) (int64, error)
}

type StorageContext interface {
	StorageConfig() apfel.GormConfig
}

// Storage provides the fetch attempt journal.
type Storage[C StorageContext] struct {
	StorageService
}

func (s Storage[C]) String() string {
	return storage.ServiceID
}

func (s *Storage[C]) Include(ctx context.Context, app apfel.MixinApp[C]) error {
	if s.StorageService != nil {
		return nil
	}

	config := app.Config().StorageConfig()
	if config.DSN == "" {
		logf.Get(s).Warnf(ctx, "database is not configured, attempts will not be recorded")
		return apfel.ErrDisabled
	}

	db := &apfel.GormDB[C]{Config: config}
	if err := app.Use(ctx, db, false); err != nil {
		return err
	}

	sql := &storage.SQL{
		Clock: app,
		DB:    db.DB(),
	}

	if err := sql.Migrate(ctx); err != nil {
		return errors.Wrap(err, "auto-migrate")
	}

	s.StorageService = sql
	return nil
}
