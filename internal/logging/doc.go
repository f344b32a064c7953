// Package logging provides structured logging for stagechain components.
//
// It wraps Go's log/slog with a JSON handler and adds context propagation
// for the identifiers that matter when reading a pipeline run after the
// fact: the stage kind and id, and the notification channel of a countdown.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/stagechain", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithStage("first", stageID).Info("stage started", "input_id", "001")
//
// An empty directory writes to stderr. Use [NopLogger] in tests.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Child loggers created via the
// With* methods share the parent's writer.
package logging
