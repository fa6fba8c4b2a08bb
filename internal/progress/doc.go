// Package progress carries export-run telemetry from the crawler to metrics
// and logs. Events go through a non-blocking Hub that batches them on a
// background goroutine and fans them out to sinks (see package sinks).
package progress
