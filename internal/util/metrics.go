package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "basket_orders_created_total",
		Help: "Total number of orders created in the ERP",
	})

	OrdersConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "basket_orders_confirmed_total",
		Help: "Total number of orders confirmed in the ERP",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_orders_failed_total",
		Help: "Total number of order requests aborted before confirmation",
	}, []string{"reason"})

	OrderPipelineLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "basket_order_pipeline_latency_seconds",
		Help:    "Latency of the full order pipeline",
		Buckets: prometheus.DefBuckets,
	})

	NotificationsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "basket_order_notifications_failed_total",
		Help: "Total number of order notifications that could not be dispatched",
	})

	FulfillmentBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_fulfillment_batches_total",
		Help: "Fulfillment batches processed, by outcome",
	}, []string{"outcome"})

	LoyaltyAccrualsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_loyalty_accruals_total",
		Help: "Order-driven loyalty accruals, by outcome",
	}, []string{"outcome"})

	LoyaltyRegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_loyalty_registrations_total",
		Help: "Loyalty registrations, by outcome",
	}, []string{"outcome"})

	SubscriptionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "basket_subscriptions_created_total",
		Help: "Total number of subscriptions created",
	})

	CustomersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "basket_customers_created_total",
		Help: "Customers created because no record matched the email",
	})

	ERPCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "erp_call_duration_seconds",
		Help:    "Latency of ERP remote calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource", "operation", "status"})

	SessionRefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "erp_session_refresh_total",
		Help: "Total number of ERP authentications",
	})

	CatalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_requests_total",
		Help: "Catalog cache lookups, by result",
	}, []string{"catalog", "result"})

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
