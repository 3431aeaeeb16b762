package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"

	"github.com/artie-labs/bqsnippets/lib/config"
)

func NewLogger(settings *config.Settings) (*slog.Logger, bool) {
	return newLogger(os.Stderr, isatty.IsTerminal(os.Stderr.Fd()), settings)
}

func newLogger(w io.Writer, colorize bool, settings *config.Settings) (*slog.Logger, bool) {
	tintLogLevel := slog.LevelInfo
	if settings != nil && settings.VerboseLogging {
		tintLogLevel = slog.LevelDebug
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:      tintLogLevel,
		TimeFormat: time.Kitchen,
		NoColor:    !colorize,
	})

	var loggingToSentry bool
	if settings != nil && settings.Config.Reporting.Sentry != nil && settings.Config.Reporting.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: settings.Config.Reporting.Sentry.DSN}); err != nil {
			slog.New(handler).Warn("Failed to enable Sentry output", slog.Any("err", err))
		} else {
			handler = slogmulti.Fanout(
				handler,
				slogsentry.Option{Level: slog.LevelError}.NewSentryHandler(),
			)
			loggingToSentry = true
		}
	}

	return slog.New(handler), loggingToSentry
}

// Flush waits for buffered Sentry events, it is a no-op when Sentry was never initialized.
func Flush() {
	sentry.Flush(2 * time.Second)
}

func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	Flush()
	os.Exit(1)
}

func Panic(msg string, args ...any) {
	slog.Error(msg, args...)
	panic(msg)
}
