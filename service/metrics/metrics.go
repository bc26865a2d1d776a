package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
//
// Every helper is safe to call on a nil *Metrics so components can be
// constructed without metrics in tests.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Quote Metrics
	quoteRequestsTotal   *prometheus.CounterVec
	quoteRequestDuration *prometheus.HistogramVec
	fanoutBatchDuration  *prometheus.HistogramVec
	fanoutFailuresTotal  *prometheus.CounterVec

	// Opportunity Metrics
	opportunitiesEvaluatedTotal  *prometheus.CounterVec
	opportunitiesProfitableTotal *prometheus.CounterVec
	pipelineRunsTotal            *prometheus.CounterVec
	pipelinesInFlight            prometheus.Gauge

	// Submission Metrics
	submissionsTotal   *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec

	// Stream Metrics
	streamEventsTotal     *prometheus.CounterVec
	streamReconnectsTotal prometheus.Counter
	bigTradesTotal        *prometheus.CounterVec

	// Cache Metrics
	nonceRefreshTotal *prometheus.CounterVec
	priceRefreshTotal *prometheus.CounterVec
	solPriceUSD       prometheus.Gauge
	auditDroppedTotal *prometheus.CounterVec

	// Workflow Metrics
	pollWorkflowDuration        *prometheus.HistogramVec
	pollWorkflowExecutionsTotal *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"method"},
		),

		// Quote Metrics
		quoteRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quote_requests_total",
				Help: "Total number of aggregator quote requests by mode and status",
			},
			[]string{"mode", "status"},
		),
		quoteRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quote_request_duration_seconds",
				Help:    "Duration of single aggregator quote requests in seconds",
				Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"mode"},
		),
		fanoutBatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fanout_batch_duration_seconds",
				Help:    "Wall-clock duration of a full round-trip quote fan-out batch",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"symbol", "mode"},
		),
		fanoutFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_failures_total",
				Help: "Total number of round-trip quote units dropped from a fan-out batch",
			},
			[]string{"symbol"},
		),

		// Opportunity Metrics
		opportunitiesEvaluatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opportunities_evaluated_total",
				Help: "Total number of round-trip quote results evaluated",
			},
			[]string{"symbol"},
		),
		opportunitiesProfitableTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opportunities_profitable_total",
				Help: "Total number of evaluated results clearing the minimum profit",
			},
			[]string{"symbol"},
		),
		pipelineRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Total number of pipeline runs by trigger source and outcome",
			},
			[]string{"source", "outcome"},
		),
		pipelinesInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipelines_in_flight",
				Help: "Number of pipeline instances currently running",
			},
		),

		// Submission Metrics
		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "submissions_total",
				Help: "Total number of transaction submissions by channel and status",
			},
			[]string{"channel", "status"},
		),
		submissionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "submission_duration_seconds",
				Help:    "Duration of a channel submission including retries",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"channel"},
		),

		// Stream Metrics
		streamEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stream_events_total",
				Help: "Total number of streamed ledger events by kind",
			},
			[]string{"kind"},
		),
		streamReconnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "stream_reconnects_total",
				Help: "Total number of ledger stream reconnects",
			},
		),
		bigTradesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "big_trades_detected_total",
				Help: "Total number of large-flow transactions detected",
			},
			[]string{"symbol"},
		),

		// Cache Metrics
		nonceRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nonce_refresh_total",
				Help: "Total number of durable nonce refreshes by status",
			},
			[]string{"status"},
		),
		priceRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_refresh_total",
				Help: "Total number of reference price refreshes by status",
			},
			[]string{"status"},
		),
		solPriceUSD: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sol_price_usd",
				Help: "Last reference SOL price in USD",
			},
		),
		auditDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_lines_dropped_total",
				Help: "Total number of audit lines dropped because the sink was saturated or failing",
			},
			[]string{"sink"},
		),

		// Workflow Metrics
		pollWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poll_workflow_duration_seconds",
				Help:    "Duration of watchlist poll workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		pollWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poll_workflow_executions_total",
				Help: "Total number of watchlist poll workflow executions",
			},
			[]string{"status"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// Quote metric helpers

// RecordQuote records one aggregator quote request.
func (m *Metrics) RecordQuote(mode string, err error, duration float64) {
	if m == nil {
		return
	}
	m.quoteRequestsTotal.WithLabelValues(mode, errorStatus(err)).Inc()
	m.quoteRequestDuration.WithLabelValues(mode).Observe(duration)
}

// RecordFanout records a completed fan-out batch and its dropped units.
func (m *Metrics) RecordFanout(symbol, mode string, failed int, duration float64) {
	if m == nil {
		return
	}
	m.fanoutBatchDuration.WithLabelValues(symbol, mode).Observe(duration)
	if failed > 0 {
		m.fanoutFailuresTotal.WithLabelValues(symbol).Add(float64(failed))
	}
}

// Opportunity metric helpers

// RecordEvaluation records how many results were evaluated and how many were kept.
func (m *Metrics) RecordEvaluation(symbol string, evaluated, kept int) {
	if m == nil {
		return
	}
	m.opportunitiesEvaluatedTotal.WithLabelValues(symbol).Add(float64(evaluated))
	m.opportunitiesProfitableTotal.WithLabelValues(symbol).Add(float64(kept))
}

// RecordPipelineRun records the terminal outcome of one pipeline instance.
func (m *Metrics) RecordPipelineRun(source, outcome string) {
	if m == nil {
		return
	}
	m.pipelineRunsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordPipelineInFlight adjusts the in-flight pipeline gauge.
func (m *Metrics) RecordPipelineInFlight(delta float64) {
	if m == nil {
		return
	}
	m.pipelinesInFlight.Add(delta)
}

// Submission metric helpers

// RecordSubmission records one channel's submission result.
func (m *Metrics) RecordSubmission(channel string, err error, duration float64) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(channel, errorStatus(err)).Inc()
	m.submissionDuration.WithLabelValues(channel).Observe(duration)
}

// Stream metric helpers

// RecordStreamEvent records a streamed ledger event by kind.
func (m *Metrics) RecordStreamEvent(kind string) {
	if m == nil {
		return
	}
	m.streamEventsTotal.WithLabelValues(kind).Inc()
}

// RecordStreamReconnect records a ledger stream reconnect.
func (m *Metrics) RecordStreamReconnect() {
	if m == nil {
		return
	}
	m.streamReconnectsTotal.Inc()
}

// RecordBigTrade records a detected large-flow transaction.
func (m *Metrics) RecordBigTrade(symbol string) {
	if m == nil {
		return
	}
	m.bigTradesTotal.WithLabelValues(symbol).Inc()
}

// Cache metric helpers

// RecordNonceRefresh records a durable nonce refresh attempt.
func (m *Metrics) RecordNonceRefresh(err error) {
	if m == nil {
		return
	}
	m.nonceRefreshTotal.WithLabelValues(errorStatus(err)).Inc()
}

// RecordPriceRefresh records a reference price refresh attempt.
func (m *Metrics) RecordPriceRefresh(price float64, err error) {
	if m == nil {
		return
	}
	m.priceRefreshTotal.WithLabelValues(errorStatus(err)).Inc()
	if err == nil {
		m.solPriceUSD.Set(price)
	}
}

// RecordAuditDropped records an audit line that never reached its file.
func (m *Metrics) RecordAuditDropped(sink string) {
	if m == nil {
		return
	}
	m.auditDroppedTotal.WithLabelValues(sink).Inc()
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	if m == nil {
		return
	}
	m.pollWorkflowDuration.WithLabelValues(status).Observe(duration)
	m.pollWorkflowExecutionsTotal.WithLabelValues(status).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, errorStatus(err)).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func errorStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
