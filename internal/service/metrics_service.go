package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wigshare/wigshare-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// layer and the review workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	donations       prometheus.Counter
	reverts         prometheus.Counter
	conflicts       *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transitions_total",
		Help: "Status transitions applied, by entity and target status",
	}, []string{"entity", "status"})

	donations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "donations_created_total",
		Help: "Donations finalized",
	})

	reverts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "donations_reverted_total",
		Help: "Donations reverted within the grace window",
	})

	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_conflicts_total",
		Help: "Writers that lost a uniqueness race, by operation",
	}, []string{"operation"})

	registry.MustRegister(requestDuration, requestTotal, transitions, donations, reverts, conflicts)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitions:     transitions,
		donations:       donations,
		reverts:         reverts,
		conflicts:       conflicts,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one handled HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveTransition counts one applied status transition.
func (s *MetricsService) ObserveTransition(entity string, status models.Status) {
	s.transitions.WithLabelValues(entity, string(status)).Inc()
}

// ObserveDonation counts one finalized donation.
func (s *MetricsService) ObserveDonation() {
	s.donations.Inc()
}

// ObserveRevert counts one reverted donation.
func (s *MetricsService) ObserveRevert() {
	s.reverts.Inc()
}

// ObserveConflict counts one lost uniqueness race.
func (s *MetricsService) ObserveConflict(operation string) {
	s.conflicts.WithLabelValues(operation).Inc()
}
