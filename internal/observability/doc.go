// Package observability provides comprehensive monitoring and debugging capabilities
// for the mission control runtime through metrics, structured logging, and distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Architecture
//
// The package is designed to be:
//   - Low-overhead: Minimal performance impact on production systems
//   - Type-safe: Strongly-typed APIs reduce configuration errors
//   - Production-ready: Built-in security (redaction) and reliability features
//   - Standards-based: Uses Prometheus, OpenTelemetry, and slog
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Mission lifecycle and status transitions
//   - Event store append throughput and per-mission sequence growth
//   - Event bus fan-out, subscriber lag, and backpressure drops
//   - Tool-call coordination latency
//   - Parallel scheduler admission and occupancy
//   - Stall detector warnings and severe stalls
//   - Subscription server session activity
//   - HTTP request/response metrics
//   - Database query performance
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	// Track mission lifecycle
//	metrics.MissionStatusChanged("completed")
//
//	// Track event store appends
//	start := time.Now()
//	// ... append event ...
//	metrics.RecordEventAppend("tool.finished", "sql", time.Since(start).Seconds())
//
//	// Track tool-call resolution
//	start = time.Now()
//	// ... resolve tool call ...
//	metrics.RecordToolCall("resolved", time.Since(start).Seconds())
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	// Add context IDs for correlation
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddMissionID(ctx, missionID)
//
//	// Structured logging with automatic context correlation
//	logger.Info(ctx, "dispatching turn",
//	    "turn_index", turnIndex,
//	    "user_id", userID,
//	)
//
//	// Error logging with automatic redaction
//	logger.Error(ctx, "provider completion failed",
//	    "error", err,
//	    "provider", "anthropic",
//	    "api_key", apiKey, // Automatically redacted
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track requests across components:
//   - End-to-end mission turn visualization
//   - Performance bottleneck identification
//   - Service dependency mapping
//   - Error correlation across components
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "missionctl",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4317", // OTLP collector
//	    SamplingRate:   0.1,              // Sample 10% of traces
//	})
//	defer shutdown(context.Background())
//
//	// Trace a mission turn
//	ctx, span := tracer.TraceMissionTurn(ctx, missionID, turnIndex)
//	defer span.End()
//
//	// Trace model completions
//	ctx, modelSpan := tracer.TraceModelCompletion(ctx, "anthropic", "claude-sonnet")
//	defer modelSpan.End()
//	tracer.SetAttributes(modelSpan, "prompt_tokens", 100, "completion_tokens", 500)
//
//	// Trace tool calls
//	ctx, toolSpan := tracer.TraceToolCall(ctx, callID, "web_search")
//	defer toolSpan.End()
//	if err != nil {
//	    tracer.RecordError(toolSpan, err)
//	}
//
// # Context Propagation
//
// All three components integrate with Go's context for automatic correlation:
//
//	// Add IDs to context
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddMissionID(ctx, "mission-456")
//	ctx = observability.AddUserID(ctx, "user-789")
//	ctx = observability.AddToolCallID(ctx, "call-1")
//
//	// IDs automatically appear in logs
//	logger.Info(ctx, "turn started") // Includes request_id, mission_id, etc.
//
//	// Spans inherit context
//	ctx, span := tracer.Start(ctx, "operation")
//	// Trace context propagates to child spans
//
// # Integration Example
//
// Complete example integrating all three components:
//
//	func RunTurn(ctx context.Context, mission *Mission) error {
//	    // Add correlation IDs
//	    ctx = observability.AddRequestID(ctx, generateID())
//	    ctx = observability.AddMissionID(ctx, mission.ID)
//
//	    // Start tracing
//	    ctx, span := tracer.TraceMissionTurn(ctx, mission.ID, mission.TurnIndex)
//	    defer span.End()
//
//	    // Track metrics
//	    metrics.ActiveMissions.Inc()
//	    defer metrics.ActiveMissions.Dec()
//
//	    // Structured logging
//	    logger.Info(ctx, "running turn", "turn_index", mission.TurnIndex)
//
//	    // Process model completion with full observability
//	    start := time.Now()
//	    ctx, modelSpan := tracer.TraceModelCompletion(ctx, "anthropic", "claude-sonnet")
//	    defer modelSpan.End()
//
//	    chunks, err := provider.Complete(ctx, req)
//	    duration := time.Since(start).Seconds()
//
//	    if err != nil {
//	        metrics.RecordError("runtime", "completion_failed")
//	        tracer.RecordError(modelSpan, err)
//	        logger.Error(ctx, "completion failed", "error", err)
//	        return err
//	    }
//
//	    logger.Info(ctx, "turn completed", "duration_ms", duration*1000)
//	    return nil
//	}
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Performance
//
// The observability system is designed for minimal overhead:
//   - Metrics use lock-free counters where possible
//   - Logging with slog is highly efficient
//   - Tracing supports sampling to reduce overhead
//   - Context propagation is zero-allocation in most cases
//
// Typical overhead:
//   - Metrics: <1% CPU, ~10KB memory per metric
//   - Logging: ~1-5μs per log call
//   - Tracing: ~2-10μs per span (when sampled)
//
// # Configuration
//
// All components support configuration via structs:
//
//	// Metrics - no configuration needed, auto-registered
//	metrics := observability.NewMetrics()
//
//	// Logging - configurable output, level, format
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:          os.Getenv("LOG_LEVEL"),
//	    Format:         "json",
//	    AddSource:      true,
//	    RedactPatterns: []string{`custom-secret-\d+`},
//	})
//
//	// Tracing - configurable sampling, endpoint, attributes
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "missionctl",
//	    ServiceVersion: version,
//	    Environment:    env,
//	    Endpoint:       os.Getenv("OTEL_ENDPOINT"),
//	    SamplingRate:   0.1,
//	    Attributes: map[string]string{
//	        "deployment.region": region,
//	        "deployment.cluster": cluster,
//	    },
//	})
//	defer shutdown(context.Background())
//
// # Testing
//
// All components provide testable interfaces:
//   - Metrics can be verified using prometheus/testutil
//   - Logging can write to bytes.Buffer for assertions
//   - Tracing works with no-op exporters in tests
//
// # Best Practices
//
//  1. Always propagate context to enable correlation
//  2. Use defer for span.End() to ensure spans are closed
//  3. Record errors on both metrics and traces
//  4. Use structured logging with key-value pairs
//  5. Set appropriate sampling rates for high-traffic systems
//  6. Add relevant attributes to spans for debugging
//  7. Use typed metric labels (avoid high-cardinality values)
//  8. Call shutdown() on tracer during graceful shutdown
//
// # Monitoring Dashboard
//
// The metrics exposed can be used to build dashboards:
//
//	# Event append throughput
//	rate(missionctl_events_appended_total[5m])
//
//	# Tool call latency (95th percentile)
//	histogram_quantile(0.95, rate(missionctl_tool_call_duration_seconds_bucket[5m]))
//
//	# Error rate
//	rate(missionctl_errors_total[5m])
//
//	# Active missions
//	missionctl_active_missions
//
//	# Subscriber lag
//	missionctl_bus_subscriber_lag
//
// # Alerting
//
// Recommended alerts based on metrics:
//   - High error rate: missionctl_errors_total > threshold
//   - Stall accumulation: rate(missionctl_stall_severe_total[10m]) > 0
//   - Scheduler backlog: missionctl_scheduler_queued > threshold for N minutes
//   - Subscriber lag: missionctl_bus_subscriber_lag growing unbounded
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - OpenTelemetry specification: https://opentelemetry.io/docs/specs/otel/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
