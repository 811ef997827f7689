package core

import (
	"context"

	"github.com/jfk9w/redditfeed/internal/core/internal/iface"

	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/colf"
	"github.com/jfk9w-go/telegram-bot-api"
	"github.com/jfk9w-go/telegram-bot-api/ext/tapp"
)

type InterfaceConfig struct {
	SupervisorID telegram.ID   `yaml:"supervisorId,omitempty" doc:"Telegram admin user ID."`
	ChatIDs      []telegram.ID `yaml:"chatIds,omitempty" doc:"Additional chats allowed to use bot commands."`
	Public       bool          `yaml:"public,omitempty" doc:"Allow everyone to use bot commands."`
}

func (c InterfaceConfig) scope() tapp.CommandScope {
	if c.Public {
		return tapp.Public
	}

	chatIDs := make(colf.Set[telegram.ID])
	if c.SupervisorID != 0 {
		chatIDs.Add(c.SupervisorID)
	}

	colf.AddAll[telegram.ID](&chatIDs, colf.Slice[telegram.ID](c.ChatIDs))
	return tapp.CommandScope{ChatIDs: chatIDs}
}

type InterfaceContext interface {
	tapp.Context
	HTTPContext
	InterfaceConfig() InterfaceConfig
}

// Interface exposes feed trackers as Telegram bot commands.
type Interface[C InterfaceContext] struct {
	*iface.Impl
}

func (i *Interface[C]) Include(ctx context.Context, app apfel.MixinApp[C]) error {
	if app.Config().TelegramConfig().Token == "" {
		return apfel.ErrDisabled
	}

	var bot tapp.Mixin[C]
	if err := app.Use(ctx, &bot, false); err != nil {
		return err
	}

	var tracker Tracker[C]
	if err := app.Use(ctx, &tracker, false); err != nil {
		return err
	}

	i.Impl = &iface.Impl{
		PostTracker:    tracker.Posts,
		CommentTracker: tracker.Comments,
		Scope:          app.Config().InterfaceConfig().scope(),
		WaitTimeout:    app.Config().HTTPConfig().WaitTimeout.Value,
	}

	if tracker.Storage != nil {
		i.Journal = tracker.Storage
	}

	return nil
}
