// Package metrics defines the Prometheus instrumentation for the capture service.
package metrics
