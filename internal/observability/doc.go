// Package observability provides logging and metrics support for the
// snowball review engine.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "console",
//	})
//	logger.Info().Str("project", name).Msg("iteration started")
//
// Add project context to a logger:
//
//	logger = observability.WithProjectContext(logger, project.Name, project.CurrentIteration+1)
//
// # Metrics
//
// Metrics register with the default Prometheus registry unless a registerer
// is supplied:
//
//	metrics := observability.NewMetrics("snowball")
//	metrics.RecordProviderRequest("openalex", "references", "success", 0.42)
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics in tests and one-shot CLI runs.
//
// # Context Helpers
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithLogger(ctx, logger)
//	logger := observability.LoggerFromContext(ctx)
//
// # Standard Fields
//
//   - request_id: API request identifier
//   - project: review project name
//   - iteration: snowball iteration being run
//   - provider: bibliographic provider (semantic_scholar, openalex, ...)
//   - paper_id: project paper identifier
//   - direction: backward or forward
package observability
