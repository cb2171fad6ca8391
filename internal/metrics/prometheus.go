package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sdn_lb"

type promMetrics struct {
	packetsIn    prometheus.Counter
	ignored      prometheus.Counter
	dropped      prometheus.Counter
	assignments  *prometheus.CounterVec
	packetsOut   *prometheus.CounterVec
	policyPushes *prometheus.CounterVec
	policyRules  prometheus.Gauge
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	pm := &promMetrics{
		packetsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_in_total",
			Help:      "Packet-in events received from the controller.",
		}),
		ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_ignored_total",
			Help:      "Packet-in events without a TCP flow key.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metric_events_dropped_total",
			Help:      "Metric events discarded because the collector buffer was full.",
		}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Connections assigned to each server port.",
		}, []string{"server_port"}),
		packetsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_out_total",
			Help:      "Packets sent out to each server port.",
		}, []string{"server_port"}),
		policyPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_push_total",
			Help:      "Policy updates sent to the controller by result.",
		}, []string{"result"}),
		policyRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "policy_rules",
			Help:      "Rules in the last policy installed.",
		}),
	}

	reg.MustRegister(
		pm.packetsIn,
		pm.ignored,
		pm.dropped,
		pm.assignments,
		pm.packetsOut,
		pm.policyPushes,
		pm.policyRules,
	)

	return pm
}

func portLabel(port int) string {
	return strconv.Itoa(port)
}
