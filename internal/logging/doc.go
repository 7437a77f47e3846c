// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stderr when no journal is present or stderr is a terminal
//   - Keeps the most recent entries in a ring buffer served by GET /api/logs
//
// Stdout is never used: the record and split commands write their output
// there.
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"capture": "debug",
//			"api":     "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("Session started", "session_id", id)
//
// Loggers obtained before Initialize are cached and pick up the configured
// level once Initialize runs.
//
// # Modules
//
//	main, capture, nal, sink, api, supervisor, config, hotplug
//
// # Viewing Logs
//
//	journalctl -t v4l2cast -f
//	journalctl -t v4l2cast MODULE=capture
//	journalctl -t v4l2cast SESSION_ID=...
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//	capture = "debug"
//	api = "warn"
package logging
