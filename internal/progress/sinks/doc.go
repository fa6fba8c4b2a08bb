// Package sinks holds progress consumers: structured logs and Prometheus.
package sinks
