// Package logging builds the process logger on top of log/slog.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	logger = logging.Component(logger, "server")
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "policy updated") // carries request_id
package logging
