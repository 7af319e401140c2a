package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/types"
)

// Collector records cloudkit operation, cache and client metrics on its own registry.
// A nil or disabled Collector accepts every call and records nothing.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	cacheCounter      *prometheus.CounterVec
	cacheEntries      *prometheus.GaugeVec
	clientsTracked    *prometheus.GaugeVec
	messageCounter    *prometheus.CounterVec
	errorCounter      *prometheus.CounterVec

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time
}

var _ types.MetricsCollector = (*Collector)(nil)

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalSize     int64         `json:"total_size"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
	AvgSize       float64       `json:"avg_size"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Namespace: "cloudkit",
			Labels:    make(map[string]string),
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	collector := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Handler returns an HTTP handler exposing the collector's registry.
func (c *Collector) Handler() http.Handler {
	if !c.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry, or nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	if !c.enabled() {
		return nil
	}
	return c.registry
}

// RecordOperation records an operation with its metrics
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	metrics, exists := c.operations[operation]
	if !exists {
		metrics = &OperationMetrics{}
		c.operations[operation] = metrics
	}
	metrics.Count++
	metrics.TotalDuration += duration
	metrics.TotalSize += size
	if !success {
		metrics.Errors++
	}
	metrics.LastOperation = time.Now()
	metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)
	metrics.AvgSize = float64(metrics.TotalSize) / float64(metrics.Count)
	c.mu.Unlock()

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"status":    status,
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": operation,
	}).Observe(duration.Seconds())

	if size > 0 {
		c.operationSize.With(prometheus.Labels{
			"operation": operation,
		}).Observe(float64(size))
	}
}

// RecordCacheHit records a cache hit
func (c *Collector) RecordCacheHit(cache string) {
	if !c.enabled() {
		return
	}

	c.cacheCounter.With(prometheus.Labels{
		"cache": cacheLabel(cache),
		"type":  "hit",
	}).Inc()
}

// RecordCacheMiss records a cache miss
func (c *Collector) RecordCacheMiss(cache string) {
	if !c.enabled() {
		return
	}

	c.cacheCounter.With(prometheus.Labels{
		"cache": cacheLabel(cache),
		"type":  "miss",
	}).Inc()
}

// UpdateCacheSize updates the live entry count of a cache
func (c *Collector) UpdateCacheSize(cache string, entries int) {
	if !c.enabled() {
		return
	}

	c.cacheEntries.With(prometheus.Labels{
		"cache": cacheLabel(cache),
	}).Set(float64(entries))
}

// UpdateTrackedClients updates the number of clients awaiting shutdown in a client cache
func (c *Collector) UpdateTrackedClients(cache string, count int) {
	if !c.enabled() {
		return
	}

	c.clientsTracked.With(prometheus.Labels{
		"cache": cacheLabel(cache),
	}).Set(float64(count))
}

// RecordMessage counts a queue message event: sent, received or deleted.
func (c *Collector) RecordMessage(queue, event string) {
	if !c.enabled() {
		return
	}

	c.messageCounter.With(prometheus.Labels{
		"queue": queue,
		"event": event,
	}).Inc()
}

// RecordError records an error
func (c *Collector) RecordError(operation string, err error) {
	if !c.enabled() || err == nil {
		return
	}

	c.errorCounter.With(prometheus.Labels{
		"operation": operation,
		"type":      classifyError(err),
	}).Inc()
}

// GetMetrics returns current metrics
func (c *Collector) GetMetrics() map[string]interface{} {
	metrics := make(map[string]interface{})
	if !c.enabled() {
		return metrics
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	operations := make(map[string]*OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		op := *v
		operations[k] = &op
	}

	metrics["operations"] = operations
	metrics["last_reset"] = c.lastReset
	metrics["uptime"] = time.Since(c.lastReset)

	return metrics
}

// ResetMetrics resets the internal operation summaries
func (c *Collector) ResetMetrics() {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

// Helper methods

func (c *Collector) enabled() bool {
	return c != nil && c.config != nil && c.config.Enabled && c.registry != nil
}

func (c *Collector) initMetrics() {
	opts := func(name, help string) (string, string, string, string, prometheus.Labels) {
		return c.config.Namespace, c.config.Subsystem, name, help, prometheus.Labels(c.config.Labels)
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		ns, sub, n, h, constLabels := opts(name, help)
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: n, Help: h, ConstLabels: constLabels,
		}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		ns, sub, n, h, constLabels := opts(name, help)
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: n, Help: h, ConstLabels: constLabels,
		}, labels)
	}

	// Operation metrics
	c.operationCounter = counter("operations_total", "Total number of operations", "operation", "status")

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "operation_duration_seconds",
			Help:        "Duration of operations in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~65s
			ConstLabels: prometheus.Labels(c.config.Labels),
		},
		[]string{"operation"},
	)

	c.operationSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "operation_size_bytes",
			Help:        "Payload size of operations in bytes",
			Buckets:     prometheus.ExponentialBuckets(64, 4, 12), // 64B to ~268MB
			ConstLabels: prometheus.Labels(c.config.Labels),
		},
		[]string{"operation"},
	)

	// Cache metrics
	c.cacheCounter = counter("cache_requests_total", "Total number of cache lookups", "cache", "type")
	c.cacheEntries = gauge("cache_entries", "Current number of cache entries", "cache")
	c.clientsTracked = gauge("clients_tracked", "Clients held for shutdown by a client cache", "cache")

	// Queue metrics
	c.messageCounter = counter("messages_total", "Total number of queue message events", "queue", "event")

	// Error metrics
	c.errorCounter = counter("errors_total", "Total number of errors", "operation", "type")
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.operationSize,
		c.cacheCounter,
		c.cacheEntries,
		c.clientsTracked,
		c.messageCounter,
		c.errorCounter,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

func cacheLabel(cache string) string {
	if cache == "" {
		return "default"
	}
	return cache
}

// classifyError prefers the structured error code and falls back to message heuristics.
func classifyError(err error) string {
	if code := ckerrors.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "connection"):
		return "connection"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "does not exist"):
		return "not_found"
	case strings.Contains(errStr, "denied"), strings.Contains(errStr, "permission"):
		return "permission"
	case strings.Contains(errStr, "throttl"):
		return "throttling"
	default:
		return "other"
	}
}
