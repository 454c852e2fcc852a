// Package metrics exposes marketplace telemetry as Prometheus collectors.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Collector owns a private registry and the marketplace collectors.
type Collector struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	rpcLatency   *prometheus.HistogramVec
	transactions *prometheus.CounterVec
	feesTotal    prometheus.Counter
	syncQueue    prometheus.Gauge
	syncResults  *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
}

// NewCollector creates a collector registered under namespace (default "flour").
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "flour"
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "operations_total",
		Help:      "Marketplace operations by name and result",
	}, []string{"op", "result"})

	c.rpcLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "request_duration_seconds",
		Help:      "Unary RPC latency",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"method", "code"})

	c.transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "transactions_total",
		Help:      "Transactions by lifecycle event (created, completed)",
	}, []string{"event"})

	c.feesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "platform_fees_total",
		Help:      "Sum of platform fees on created transactions, in currency units",
	})

	c.syncQueue = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "queue_depth",
		Help:      "Events waiting to be persisted",
	})

	c.syncResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "writes_total",
		Help:      "Persistence writes by result (ok, error, dropped)",
	}, []string{"result"})

	c.webhooks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "webhooks_total",
		Help:      "Payment webhooks by outcome",
	}, []string{"outcome"})

	c.registry.MustRegister(
		c.operations, c.rpcLatency, c.transactions, c.feesTotal,
		c.syncQueue, c.syncResults, c.webhooks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Operation counts one engine operation; err decides the result label.
func (c *Collector) Operation(op string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.operations.WithLabelValues(op, result).Inc()
}

// ObserveRPC records the latency of a unary call.
func (c *Collector) ObserveRPC(method, code string, d time.Duration) {
	if c == nil {
		return
	}
	c.rpcLatency.WithLabelValues(method, code).Observe(d.Seconds())
}

// TransactionCreated counts a new transaction and its fee.
func (c *Collector) TransactionCreated(fee decimal.Decimal) {
	if c == nil {
		return
	}
	c.transactions.WithLabelValues("created").Inc()
	c.feesTotal.Add(fee.InexactFloat64())
}

// TransactionCompleted counts a transaction reaching completed.
func (c *Collector) TransactionCompleted() {
	if c == nil {
		return
	}
	c.transactions.WithLabelValues("completed").Inc()
}

// SyncQueueDepth sets the current persistence backlog.
func (c *Collector) SyncQueueDepth(n int) {
	if c == nil {
		return
	}
	c.syncQueue.Set(float64(n))
}

// SyncResult counts one persistence write outcome.
func (c *Collector) SyncResult(result string) {
	if c == nil {
		return
	}
	c.syncResults.WithLabelValues(result).Inc()
}

// Webhook counts one payment webhook outcome.
func (c *Collector) Webhook(outcome string) {
	if c == nil {
		return
	}
	c.webhooks.WithLabelValues(outcome).Inc()
}
