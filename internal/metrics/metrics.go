// Package metrics holds the Prometheus collectors shared across packages.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReservationOperations counts reservation engine calls by operation and outcome.
	ReservationOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roombook_reservation_operations_total",
		Help: "Reservation engine operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// ReservationDuration tracks reservation engine latency.
	ReservationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roombook_reservation_operation_duration_seconds",
		Help:    "Reservation engine operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"operation"})

	// CatalogRequests counts catalog cache lookups by result (hit, miss, error).
	CatalogRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roombook_catalog_requests_total",
		Help: "Resource catalog cache lookups by result",
	}, []string{"result"})

	// CatalogInvalidations counts catalog invalidations by outcome.
	CatalogInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roombook_catalog_invalidations_total",
		Help: "Resource catalog cache invalidations by outcome",
	}, []string{"outcome"})

	// EventsPublished counts domain events accepted by the dispatcher by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roombook_events_published_total",
		Help: "Domain events accepted for delivery by type",
	}, []string{"type"})

	// EventsDropped counts domain events dropped because the queue was full.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roombook_events_dropped_total",
		Help: "Domain events dropped because the dispatcher queue was full",
	}, []string{"type"})

	// EventDeliveryFailures counts sink deliveries that failed after all retries.
	EventDeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roombook_event_delivery_failures_total",
		Help: "Sink deliveries that failed after all retries",
	}, []string{"sink"})

	// WebsocketClients tracks connected event stream subscribers.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roombook_websocket_clients",
		Help: "Connected event stream subscribers",
	})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
