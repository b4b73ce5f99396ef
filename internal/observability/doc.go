// Package observability provides logging, metrics and tracing for the gateway.
//
// Logging is structured and backed by zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request rejected",
//	    observability.String("reason", "expired"),
//	)
//
// Metrics live in a per-instance Prometheus registry served by Metrics.Handler.
// Tracing uses OpenTelemetry with an OTLP/gRPC exporter when enabled.
package observability
