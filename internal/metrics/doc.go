/*
Package metrics exposes cloudkit operation, cache, client and queue metrics through
Prometheus.

The Collector owns a private registry; mount Handler wherever the host application
serves metrics. Every method is safe on a nil or disabled Collector, so components
accept an optional *Collector without checks.

Exported series (namespace defaults to "cloudkit"):

	operations_total{operation,status}
	operation_duration_seconds{operation}
	operation_size_bytes{operation}
	cache_requests_total{cache,type}
	cache_entries{cache}
	clients_tracked{cache}
	messages_total{queue,event}
	errors_total{operation,type}

errors_total classifies errors by their cloudkit error code when one is present.
*/
package metrics
