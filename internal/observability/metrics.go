package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Mission lifecycle and status transitions
//   - Event store append/read throughput and sequence growth
//   - Event bus fan-out, subscriber lag, and backpressure drops
//   - Tool-call coordination latency
//   - Parallel scheduler admission and occupancy
//   - Stall detector warnings and severe stalls
//   - Subscription server session activity
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.MissionStatusChanged("completed")
//	defer metrics.EventAppendDuration.WithLabelValues("sql").Observe(time.Since(start).Seconds())
type Metrics struct {
	// MissionsTotal counts missions by terminal/initial status transition.
	// Labels: status (active|completed|failed|interrupted|blocked|not_feasible)
	MissionsTotal *prometheus.CounterVec

	// ActiveMissions is a gauge tracking missions currently running.
	ActiveMissions prometheus.Gauge

	// MissionTransitionErrors counts rejected status transitions.
	// Labels: from_status, to_status
	MissionTransitionErrors *prometheus.CounterVec

	// EventAppendCounter counts events appended to the event store.
	// Labels: event_type
	EventAppendCounter *prometheus.CounterVec

	// EventAppendDuration measures event store append latency in seconds.
	// Labels: backend (memory|sql)
	// Buckets: 0.0005s, 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s
	EventAppendDuration *prometheus.HistogramVec

	// EventSequenceHighWater tracks the last assigned sequence per mission.
	// Labels: mission_id
	EventSequenceHighWater *prometheus.GaugeVec

	// BusPublishCounter counts events published to the event bus.
	BusPublishCounter prometheus.Counter

	// BusSubscriberGauge tracks active subscriptions on the bus.
	BusSubscriberGauge prometheus.Gauge

	// BusDroppedEvents counts events dropped due to full subscriber buffers.
	// Labels: lane (the subscription filter: a mission id or "all")
	BusDroppedEvents *prometheus.CounterVec

	// BusSubscriberLag tracks how many events behind a subscriber's buffer is.
	// Labels: mission_id
	BusSubscriberLag *prometheus.GaugeVec

	// QueueDepth tracks pending queued messages.
	// Labels: mission_id
	QueueDepth *prometheus.GaugeVec

	// QueueWait measures time a message spends queued before being taken.
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	QueueWait prometheus.Histogram

	// ToolCallDuration measures time between tool-call registration and resolution.
	// Labels: status (resolved|cancelled|timed_out)
	ToolCallDuration *prometheus.HistogramVec

	// ToolCallOutstanding tracks tool calls awaiting resolution.
	ToolCallOutstanding prometheus.Gauge

	// SchedulerAdmitted counts missions admitted to run.
	SchedulerAdmitted prometheus.Counter

	// SchedulerQueued tracks missions waiting for a scheduling slot.
	SchedulerQueued prometheus.Gauge

	// SchedulerRunning tracks missions currently occupying a slot.
	SchedulerRunning prometheus.Gauge

	// StallWarnings counts missions crossing the warn threshold.
	StallWarnings prometheus.Counter

	// StallSevere counts missions crossing the severe threshold.
	StallSevere prometheus.Counter

	// SubscriptionSessionsActive tracks open subscription sessions.
	SubscriptionSessionsActive prometheus.Gauge

	// SubscriptionCatchupEvents counts events delivered during paged replay.
	SubscriptionCatchupEvents prometheus.Counter

	// SubscriptionRecatchups counts times a session had to re-enter catch-up due to lag.
	SubscriptionRecatchups prometheus.Counter

	// ErrorCounter tracks errors by type and component.
	// Labels: component (eventstore|eventbus|missions|queue|runtime|coordinator|scheduler|stall|subscription)
	ErrorCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	HTTPRequestCounter *prometheus.CounterVec

	// DatabaseQueryDuration measures database query latency.
	// Labels: operation (select|insert|update|delete), table
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts database queries.
	DatabaseQueryCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
func NewMetrics() *Metrics {
	return &Metrics{
		MissionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "missionctl_missions_total",
				Help: "Total number of missions by resulting status",
			},
			[]string{"status"},
		),

		ActiveMissions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "missionctl_active_missions",
				Help: "Current number of missions in the active status",
			},
		),

		MissionTransitionErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "missionctl_mission_transition_errors_total",
				Help: "Total number of rejected mission status transitions",
			},
			[]string{"from_status", "to_status"},
		),

		EventAppendCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "missionctl_events_appended_total",
				Help: "Total number of events appended to the event store by type",
			},
			[]string{"event_type"},
		),

		EventAppendDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "missionctl_event_append_duration_seconds",
				Help:    "Duration of event store append operations in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"backend"},
		),

		EventSequenceHighWater: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "missionctl_event_sequence_high_water",
				Help: "Last assigned event sequence number per mission",
			},
			[]string{"mission_id"},
		),

		BusPublishCounter: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "missionctl_bus_published_total",
				Help: "Total number of events published to the event bus",
			},
		),

		BusSubscriberGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "missionctl_bus_subscribers",
				Help: "Current number of active event bus subscriptions",
			},
		),

		BusDroppedEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "missionctl_bus_dropped_events_total",
				Help: "Total number of events dropped due to full subscriber buffers",
			},
			[]string{"lane"},
		),

		BusSubscriberLag: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "missionctl_bus_subscriber_lag",
				Help: "Events behind the latest sequence for a lagging subscriber",
			},
			[]string{"mission_id"},
		),

		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "missionctl_queue_depth",
				Help: "Current message queue depth by mission",
			},
			[]string{"mission_id"},
		),

		QueueWait: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "missionctl_queue_wait_seconds",
				Help:    "Time a message spends queued before being taken",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),

		ToolCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "missionctl_tool_call_duration_seconds",
				Help:    "Duration between tool-call registration and resolution",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		ToolCallOutstanding: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "missionctl_tool_calls_outstanding",
				Help: "Current number of tool calls awaiting resolution",
			},
		),

		SchedulerAdmitted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "missionctl_scheduler_admitted_total",
				Help: "Total number of missions admitted to run by the scheduler",
			},
		),

		SchedulerQueued: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "missionctl_scheduler_queued",
				Help: "Current number of missions waiting for a scheduling slot",
			},
		),

		SchedulerRunning: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "missionctl_scheduler_running",
				Help: "Current number of missions occupying a scheduling slot",
			},
		),

		StallWarnings: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "missionctl_stall_warnings_total",
				Help: "Total number of missions crossing the stall warn threshold",
			},
		),

		StallSevere: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "missionctl_stall_severe_total",
				Help: "Total number of missions crossing the stall severe threshold",
			},
		),

		SubscriptionSessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "missionctl_subscription_sessions_active",
				Help: "Current number of open subscription sessions",
			},
		),

		SubscriptionCatchupEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "missionctl_subscription_catchup_events_total",
				Help: "Total number of events delivered during paged catch-up replay",
			},
		),

		SubscriptionRecatchups: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "missionctl_subscription_recatchups_total",
				Help: "Total number of times a session re-entered catch-up due to lag",
			},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "missionctl_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "missionctl_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "missionctl_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		DatabaseQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "missionctl_database_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "missionctl_database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
	}
}

// MissionStatusChanged records a mission reaching a new status.
func (m *Metrics) MissionStatusChanged(status string) {
	m.MissionsTotal.WithLabelValues(status).Inc()
}

// MissionTransitionRejected records a rejected status transition attempt.
func (m *Metrics) MissionTransitionRejected(from, to string) {
	m.MissionTransitionErrors.WithLabelValues(from, to).Inc()
}

// RecordEventAppend records an event store append.
func (m *Metrics) RecordEventAppend(eventType, backend string, durationSeconds float64) {
	m.EventAppendCounter.WithLabelValues(eventType).Inc()
	m.EventAppendDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// SetSequenceHighWater records the latest sequence assigned for a mission.
func (m *Metrics) SetSequenceHighWater(missionID string, sequence uint64) {
	m.EventSequenceHighWater.WithLabelValues(missionID).Set(float64(sequence))
}

// RecordBusPublish records an event fanned out by the bus.
func (m *Metrics) RecordBusPublish() {
	m.BusPublishCounter.Inc()
}

// SubscriberAdded increments the active subscriber gauge.
func (m *Metrics) SubscriberAdded() {
	m.BusSubscriberGauge.Inc()
}

// SubscriberRemoved decrements the active subscriber gauge.
func (m *Metrics) SubscriberRemoved() {
	m.BusSubscriberGauge.Dec()
}

// RecordBusDrop records an event dropped from a subscriber's bounded buffer.
func (m *Metrics) RecordBusDrop(lane string) {
	m.BusDroppedEvents.WithLabelValues(lane).Inc()
}

// SetSubscriberLag records how far behind a subscriber's buffer has fallen.
func (m *Metrics) SetSubscriberLag(missionID string, lag int) {
	m.BusSubscriberLag.WithLabelValues(missionID).Set(float64(lag))
}

// SetQueueDepth sets the current queue depth for a mission.
func (m *Metrics) SetQueueDepth(missionID string, depth int) {
	m.QueueDepth.WithLabelValues(missionID).Set(float64(depth))
}

// RecordQueueWait records how long a message waited before being taken.
func (m *Metrics) RecordQueueWait(waitSeconds float64) {
	m.QueueWait.Observe(waitSeconds)
}

// RecordToolCall records a tool call's resolution latency and outcome.
func (m *Metrics) RecordToolCall(status string, durationSeconds float64) {
	m.ToolCallDuration.WithLabelValues(status).Observe(durationSeconds)
}

// SchedulerMissionAdmitted records a mission being admitted to run.
func (m *Metrics) SchedulerMissionAdmitted() {
	m.SchedulerAdmitted.Inc()
}

// SetSchedulerOccupancy sets the current queued and running mission counts.
func (m *Metrics) SetSchedulerOccupancy(queued, running int) {
	m.SchedulerQueued.Set(float64(queued))
	m.SchedulerRunning.Set(float64(running))
}

// RecordStallWarning records a mission crossing the warn threshold.
func (m *Metrics) RecordStallWarning() {
	m.StallWarnings.Inc()
}

// RecordStallSevere records a mission crossing the severe threshold.
func (m *Metrics) RecordStallSevere() {
	m.StallSevere.Inc()
}

// SubscriptionOpened increments the active subscription session gauge.
func (m *Metrics) SubscriptionOpened() {
	m.SubscriptionSessionsActive.Inc()
}

// SubscriptionClosed decrements the active subscription session gauge.
func (m *Metrics) SubscriptionClosed() {
	m.SubscriptionSessionsActive.Dec()
}

// RecordCatchupEvents records events delivered during a paged replay.
func (m *Metrics) RecordCatchupEvents(n int) {
	m.SubscriptionCatchupEvents.Add(float64(n))
}

// RecordRecatchup records a session re-entering catch-up due to lag.
func (m *Metrics) RecordRecatchup() {
	m.SubscriptionRecatchups.Inc()
}

// RecordError increments the error counter for a given component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordDatabaseQuery records metrics for a database query.
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}
