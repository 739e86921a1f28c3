// Package log provides the logging abstraction shared by washline components.
//
// The [Logger] interface carries structured fields and can be backed by any
// logging library. A zerolog adapter and a no-op logger are provided.
//
//	logger := log.NewZerologAdapter(os.Stderr, "info")
//	logger.Warn("mutation dropped", log.String("correlation_id", id), log.Err(err))
//
// Library code defaults to [NoopLogger] so embedding applications decide
// where output goes.
package log
