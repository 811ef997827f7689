package main

import (
	"context"

	"github.com/jfk9w/redditfeed/internal/3rdparty/reddit"
	"github.com/jfk9w/redditfeed/internal/core"
	vendor "github.com/jfk9w/redditfeed/internal/ext/vendors/reddit"

	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/gormf"
	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/jfk9w-go/telegram-bot-api/ext/tapp"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type C struct {
	Telegram struct {
		tapp.Config          `yaml:",inline"`
		core.InterfaceConfig `yaml:",inline"`
	} `yaml:"telegram,omitempty" doc:"Bot-related settings. Bot is disabled if token is empty."`

	Db apfel.GormConfig `yaml:"db,omitempty" doc:"Fetch attempt journal connection settings. Supported drivers: postgres, sqlite. Journal is disabled if dsn is empty." default:"{\"driver\":\"sqlite\",\"dsn\":\"file::memory:?cache=shared\"}"`

	Tracker core.TrackerConfig `yaml:"tracker,omitempty" doc:"Feed tracker settings."`

	HTTP core.HTTPConfig `yaml:"http,omitempty" doc:"JSON API settings."`

	Reddit struct {
		reddit.Config `yaml:",inline"`
		Thumbnails    vendor.ThumbnailConfig `yaml:"thumbnails,omitempty" doc:"Post thumbnail selection settings."`
	} `yaml:"reddit,omitempty" doc:"reddit.com-related settings."`

	Logging    core.LoggingConfig     `yaml:"logging,omitempty" doc:"Logging settings."`
	Prometheus apfel.PrometheusConfig `yaml:"prometheus,omitempty" doc:"Prometheus settings."`
}

func (c C) LogfConfig() apfel.LogfConfig             { return c.Logging.LogfConfig }
func (c C) LoggingConfig() core.LoggingConfig        { return c.Logging }
func (c C) PrometheusConfig() apfel.PrometheusConfig { return c.Prometheus }
func (c C) TelegramConfig() tapp.Config              { return c.Telegram.Config }
func (c C) InterfaceConfig() core.InterfaceConfig    { return c.Telegram.InterfaceConfig }
func (c C) StorageConfig() apfel.GormConfig          { return c.Db }
func (c C) TrackerConfig() core.TrackerConfig        { return c.Tracker }
func (c C) HTTPConfig() core.HTTPConfig              { return c.HTTP }
func (c C) RedditConfig() reddit.Config              { return c.Reddit.Config }
func (c C) ThumbnailConfig() vendor.ThumbnailConfig  { return c.Reddit.Thumbnails }

var GitCommit = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := apfel.Boot[C]{
		Name:    "redditfeed",
		Version: GitCommit,
	}.App(ctx)
	defer flu.CloseQuietly(app)

	var (
		gorm = &apfel.Gorm[C]{
			Drivers: map[string]apfel.GormDriver{
				"postgres": postgres.Open,
				"sqlite":   sqlite.Open,
			},
			Config: gorm.Config{
				Logger: gormf.LogfLogger(app, "gorm.sql"),
			},
		}

		tracker core.Tracker[C]
	)

	app.Uses(ctx,
		new(core.Logging[C]),
		new(apfel.Prometheus[C]),
		gorm,
		&tracker,
		new(vendor.Mixin[C]),
		new(core.HTTP[C]),
	)

	config := app.Config()
	if config.Tracker.Preload {
		if err := tracker.Preload(ctx); err != nil {
			logf.Panicf(ctx, "preload: %+v", err)
		}
	}

	if config.Telegram.Token == "" {
		logf.Infof(ctx, "telegram token is empty, bot is disabled")
		syncf.AwaitSignal(ctx)
		return
	}

	var telegram tapp.Mixin[C]
	app.Uses(ctx,
		&telegram,
		new(core.Interface[C]),
	)

	telegram.Run(ctx)
}
