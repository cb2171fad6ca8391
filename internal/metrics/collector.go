package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type EventType string

const (
	EventPacketIn          EventType = "packet_in"
	EventPacketIgnored     EventType = "packet_ignored"
	EventAssignmentCreated EventType = "assignment_created"
	EventPolicyPushed      EventType = "policy_pushed"
	EventPolicyFailed      EventType = "policy_failed"
	EventPacketOut         EventType = "packet_out"
)

type Event struct {
	Type       EventType
	Timestamp  time.Time
	ServerPort int
	Rules      int
}

type Collector struct {
	eventCh  chan Event
	metrics  *Metrics
	prom     *promMetrics
	registry *prometheus.Registry
	logger   *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	reg := prometheus.NewRegistry()

	return &Collector{
		eventCh:  make(chan Event, bufferSize),
		metrics:  NewMetrics(),
		prom:     newPromMetrics(reg),
		registry: reg,
		logger:   logger,
	}
}

// Emit queues an event without blocking. It reports false if the event was
// dropped because the buffer is full.
func (c *Collector) Emit(event Event) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
		return true
	default:
		c.prom.dropped.Inc()
		return false
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	// Prometheus first, so a snapshot never runs ahead of the exposition.
	switch event.Type {
	case EventPacketIn:
		c.prom.packetsIn.Inc()
		c.metrics.IncrementPacketsIn()

	case EventPacketIgnored:
		c.prom.ignored.Inc()
		c.metrics.IncrementIgnored()

	case EventAssignmentCreated:
		c.prom.assignments.WithLabelValues(portLabel(event.ServerPort)).Inc()
		c.metrics.RecordAssignment(event.ServerPort)

	case EventPacketOut:
		c.prom.packetsOut.WithLabelValues(portLabel(event.ServerPort)).Inc()
		c.metrics.RecordPacketOut(event.ServerPort)

	case EventPolicyPushed:
		c.prom.policyPushes.WithLabelValues("ok").Inc()
		c.prom.policyRules.Set(float64(event.Rules))
		c.metrics.RecordPolicyPush(event.Rules, event.Timestamp)

	case EventPolicyFailed:
		c.prom.policyPushes.WithLabelValues("error").Inc()
		c.metrics.RecordPolicyFailure()
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}

// Registry returns the Prometheus registry the collector reports into.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
