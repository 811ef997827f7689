// Package logging contains a github.com/sirupsen/logrus backend for logf.
package logging

import (
	"context"
	"io"
	"regexp"

	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/sirupsen/logrus"
)

var levels = map[logf.Level]logrus.Level{
	logf.Trace: logrus.TraceLevel,
	logf.Debug: logrus.DebugLevel,
	logf.Info:  logrus.InfoLevel,
	logf.Warn:  logrus.WarnLevel,
	logf.Error: logrus.ErrorLevel,
	// logf panics on its own after logging
	logf.Panic: logrus.ErrorLevel,
}

// Bare writes logf messages to a logrus.Logger.
type Bare struct {
	Entry *logrus.Entry
}

func (b Bare) Logf(ctx context.Context, level logf.Level, pattern string, values ...any) {
	lvl, ok := levels[level]
	if !ok {
		return
	}

	entry := b.Entry
	if goroutineID, ok := syncf.GoroutineID(ctx); ok {
		entry = entry.WithField("goroutine", goroutineID)
	}

	if level == logf.Panic {
		entry = entry.WithField("panic", true)
	}

	entry.Logf(lvl, pattern, values...)
}

// Rule overrides level for loggers with matching names.
type Rule struct {
	Match *regexp.Regexp
	Level logf.Level
}

// Factory creates logf loggers backed by a single logrus.Logger.
type Factory struct {
	Logger *logrus.Logger
	Level  logf.Level
	Rules  []Rule
}

// NewJSON creates a Factory writing JSON lines to out.
func NewJSON(out io.Writer, level logf.Level) *Factory {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.TraceLevel)
	return &Factory{Logger: logger, Level: level}
}

// Create is a logf.Factory.
func (f *Factory) Create(name string, _ logf.Interface) logf.Interface {
	entry := logrus.NewEntry(f.Logger)
	if name != "" {
		entry = entry.WithField("logger", name)
	}

	level := f.Level
	for _, rule := range f.Rules {
		if rule.Match.MatchString(name) {
			level = rule.Level
			break
		}
	}

	logger := &logf.BareAdapter{Bare: Bare{Entry: entry}}
	logger.SetLevel(level)
	return logger
}
