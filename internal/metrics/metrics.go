// Package metrics holds the Prometheus instruments shared by the sync
// engine, the feed publisher and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcontrol_sync_runs_total",
		Help: "Completed synchronization runs by store and outcome",
	}, []string{"store", "status"})

	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedcontrol_sync_duration_seconds",
		Help:    "Wall-clock duration of synchronization runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"store", "phase"})

	ProductsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcontrol_products_processed_total",
		Help: "Products processed during Phase 1 by store and result",
	}, []string{"store", "result"})

	SupplierRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcontrol_supplier_requests_total",
		Help: "Supplier API requests by supplier and status",
	}, []string{"supplier", "status"})

	SupplierRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedcontrol_supplier_request_duration_seconds",
		Help:    "Supplier API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"supplier"})

	FeedsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcontrol_feeds_submitted_total",
		Help: "Feed batches submitted to the marketplace by store and outcome",
	}, []string{"store", "status"})

	FeedItemsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcontrol_feed_items_total",
		Help: "Feed items by store and marketplace verdict",
	}, []string{"store", "verdict"})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedcontrol_active_runs",
		Help: "Synchronization runs currently in flight",
	})

	ScheduledStores = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedcontrol_scheduled_stores",
		Help: "Stores with an armed schedule timer",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedcontrol_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status code",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)
