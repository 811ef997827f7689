package storage

import (
	"context"

	"github.com/jfk9w/redditfeed/internal/feed"

	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const ServiceID = "core.storage"

// DefaultListLimit is used when ListAttempts is called with non-positive limit.
const DefaultListLimit = 20

// SQL is a gorm-backed fetch attempt journal.
type SQL struct {
	Clock syncf.Clock
	DB    *gorm.DB
}

func (s *SQL) String() string {
	return ServiceID
}

// Migrate creates or updates the journal schema.
func (s *SQL) Migrate(ctx context.Context) error {
	return s.DB.WithContext(ctx).AutoMigrate(new(feed.Attempt))
}

func (s *SQL) RecordAttempt(ctx context.Context, attempt *feed.Attempt) error {
	if attempt.ID == "" {
		return errors.New("empty attempt id")
	}

	if attempt.FinishedAt.IsZero() && s.Clock != nil {
		attempt.FinishedAt = s.Clock.Now()
	}

	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(attempt).
		Error
}

func (s *SQL) ListAttempts(ctx context.Context, feedID string, limit int) ([]feed.Attempt, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	attempts := make([]feed.Attempt, 0)
	return attempts, s.DB.WithContext(ctx).
		Where("feed_id = ?", feedID).
		Order("started_at desc").
		Limit(limit).
		Find(&attempts).
		Error
}

// GetAttempt returns the attempt by its ID or feed.ErrNotFound.
func (s *SQL) GetAttempt(ctx context.Context, id string) (*feed.Attempt, error) {
	var attempt feed.Attempt
	err := s.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&attempt).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, feed.ErrNotFound
	}

	return &attempt, err
}

// DeleteAttempts removes all attempts of the feed and returns the number of deleted records.
func (s *SQL) DeleteAttempts(ctx context.Context, feedID string) (int64, error) {
	tx := s.DB.WithContext(ctx).
		Delete(new(feed.Attempt), "feed_id = ?", feedID)
	return tx.RowsAffected, tx.Error
}
