package logging

import (
	"log/slog"
)

// SetupServeMode initializes logging for the serve subcommand, where
// stdout is reserved exclusively for the Content-Length-framed JSON-RPC
// stream. Any stray write to stdout or stderr would corrupt
// that stream, so this logs only to file, in JSON, at debug level for
// full diagnostics.
func SetupServeMode() (func(), error) {
	cfg := Config{
		Level:         "debug",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)

	slog.Info("serve mode logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level),
		slog.Bool("stderr_disabled", true))

	return cleanup, nil
}

// SetupServeModeWithLevel is SetupServeMode with an explicit level,
// used when the daemon is started with --log-level.
func SetupServeModeWithLevel(level string) (func(), error) {
	cfg := Config{
		Level:         level,
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return cleanup, nil
}
