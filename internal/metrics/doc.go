// Package metrics collects load balancer events off the packet-in path.
//
// Events are sent on a buffered channel and processed by a dedicated
// goroutine, which keeps:
//   - packet-in, ignored packet and packet-out counts
//   - new assignments per server port
//   - policy push successes, failures and the size of the last policy
//
// Emit never blocks: when the buffer is full the event is counted as dropped
// and discarded, so a slow collector cannot stall the controller event loop.
//
// The same events feed a Prometheus registry served by PrometheusHandler.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.Event{Type: metrics.EventAssignmentCreated, ServerPort: 10})
//
//	snapshot := collector.Snapshot()
package metrics
