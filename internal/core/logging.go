package core

import (
	"context"
	"os"
	"regexp"

	"github.com/jfk9w/redditfeed/internal/core/internal/logging"

	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/logf"
	"github.com/pkg/errors"
)

type LoggingConfig struct {
	apfel.LogfConfig `yaml:",inline"`
	Format           string `yaml:"format,omitempty" doc:"Log format. json output is written via logrus." enum:"text,json" default:"text"`
}

type LoggingContext interface {
	apfel.LogfContext
	LoggingConfig() LoggingConfig
}

// Logging configures logf either with plain text or with logrus JSON output.
type Logging[C LoggingContext] struct{}

func (m Logging[C]) String() string {
	return "core.logging"
}

func (m *Logging[C]) Include(ctx context.Context, app apfel.MixinApp[C]) error {
	config := app.Config().LoggingConfig()
	if config.Format != "json" {
		return app.Use(ctx, new(apfel.Logf[C]), false)
	}

	var out flu.Output
	switch config.Output {
	case "", "stderr":
		out = flu.IO{W: os.Stderr}
	case "stdout":
		out = flu.IO{W: os.Stdout}
	default:
		out = flu.File(config.Output)
	}

	writer, err := out.Writer()
	if err != nil {
		return errors.Wrapf(err, "open log output %s", config.Output)
	}

	if err := app.Manage(ctx, writer); err != nil {
		return err
	}

	level := config.Level
	if level == 0 {
		level = logf.Info
	}

	factory := logging.NewJSON(writer, level)
	for _, rule := range config.Rules {
		match, err := regexp.Compile(rule.Match)
		if err != nil {
			return errors.Wrapf(err, "compile logf prefix regexp [%s]", rule.Match)
		}

		if rule.Level == 0 {
			rule.Level = level
		}

		factory.Rules = append(factory.Rules, logging.Rule{Match: match, Level: rule.Level})
	}

	logf.ResetFactory(factory.Create)
	logf.Get(m).Debugf(ctx, "using json log format")
	return nil
}
