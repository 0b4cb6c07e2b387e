// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Optional rotating file output (lumberjack) is teed next to the console
// output and always written as JSON.
//
// Logger.For(ctx) attaches the diagnostic context of the request being
// served, so log lines carry the request identifier without handlers
// passing it around.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.For(ctx).Error("Failed to relay", zap.Error(err))
package logging
