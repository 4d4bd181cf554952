package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	httpErrorsTotal      *prometheus.CounterVec
	transitionsTotal     *prometheus.CounterVec
	ticketsIssuedTotal   prometheus.Counter
	batchRejectedTotal   *prometheus.CounterVec
	reviewCacheTotal     *prometheus.CounterVec
	eventsPublishedTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Committed state transitions by entity.",
		}, []string{"entity", "from", "to"})

		ticketsIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets persisted by issuance batches.",
		})

		batchRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_batches_rejected_total",
			Help: "Ticket batches rejected before persistence.",
		}, []string{"reason"})

		reviewCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_queue_cache_total",
			Help: "Reviewer queue count cache lookups.",
		}, []string{"result"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_events_published_total",
			Help: "Workflow events handed to the message bus.",
		}, []string{"event", "status"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			transitionsTotal,
			ticketsIssuedTotal,
			batchRejectedTotal,
			reviewCacheTotal,
			eventsPublishedTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// WorkflowTransitions counts committed activity and review transitions.
func WorkflowTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return transitionsTotal
}

// TicketsIssued counts persisted tickets.
func TicketsIssued() prometheus.Counter {
	RegisterMetrics()
	return ticketsIssuedTotal
}

// TicketBatchesRejected counts rejected issuance batches by reason.
func TicketBatchesRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return batchRejectedTotal
}

// ReviewQueueCache counts reviewer queue cache hits and misses.
func ReviewQueueCache() *prometheus.CounterVec {
	RegisterMetrics()
	return reviewCacheTotal
}

// EventsPublished counts workflow events by outcome.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}
