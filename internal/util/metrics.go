package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of rejected order requests",
	}, []string{"reason"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of accepted order status transitions",
	}, []string{"from", "to"})

	OrderTransitionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_rejected_total",
		Help: "Total number of rejected order status transitions",
	}, []string{"reason"})

	StockCommittedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_committed_units_total",
		Help: "Units taken from listing stock at fulfillment",
	})

	StockShortfallUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_shortfall_units_total",
		Help: "Ordered units that were no longer in stock at fulfillment",
	})

	FulfillmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fulfillment_latency_seconds",
		Help:    "Latency of the transition + stock commit transaction",
		Buckets: prometheus.DefBuckets,
	})

	ListingsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listings_created_total",
		Help: "Total number of listings created by fee source",
	}, []string{"source"})

	FeeQuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fee_quotes_total",
		Help: "Total number of fee previews by fee source",
	}, []string{"source"})

	VoucherRedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voucher_redemptions_total",
		Help: "Total number of voucher redemptions",
	})

	VoucherRedemptionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voucher_redemptions_rejected_total",
		Help: "Total number of rejected voucher redemptions",
	}, []string{"reason"})

	EventsPublishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_publish_failed_total",
		Help: "Total number of domain events that could not be published",
	}, []string{"type"})

	EventsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_skipped_total",
		Help: "Total number of consumed messages skipped as undecodable",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
