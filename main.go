package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/artie-labs/bqsnippets/lib/logger"
)

func newParser(opts *globalOptions, options flags.Options) (*flags.Parser, error) {
	parser := flags.NewParser(opts, options)
	if err := registerCommands(parser, &app{opts: opts}); err != nil {
		return nil, err
	}

	return parser, nil
}

func main() {
	var opts globalOptions
	parser, err := newParser(&opts, flags.Default)
	if err != nil {
		logger.Fatal("Failed to register commands", slog.Any("err", err))
	}

	if _, err = parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}

		os.Exit(1)
	}
}
