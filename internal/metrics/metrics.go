package metrics

import (
	"sync"
	"time"
)

// Metrics is the in-memory store behind Collector. It is safe for concurrent
// use.
type Metrics struct {
	mutex         sync.RWMutex
	packetsIn     int64
	ignored       int64
	packetsOut    map[int]int64
	assignments   map[int]int64
	policyPushes  int64
	policyFails   int64
	lastRuleCount int
	lastPush      time.Time
	startTime     time.Time
}

type Snapshot struct {
	Uptime         time.Duration         `json:"uptime"`
	PacketsIn      int64                 `json:"packets_in"`
	PacketsIgnored int64                 `json:"packets_ignored"`
	Connections    int64                 `json:"connections"`
	PolicyPushes   int64                 `json:"policy_pushes"`
	PolicyFailures int64                 `json:"policy_failures"`
	LastRuleCount  int                   `json:"last_rule_count"`
	LastPush       time.Time             `json:"last_push"`
	Servers        map[int]ServerMetrics `json:"servers"`
}

type ServerMetrics struct {
	Assignments int64 `json:"assignments"`
	PacketsOut  int64 `json:"packets_out"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		packetsOut:  make(map[int]int64),
		assignments: make(map[int]int64),
		startTime:   time.Now(),
	}
}

func (m *Metrics) IncrementPacketsIn() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.packetsIn++
}

func (m *Metrics) IncrementIgnored() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.ignored++
}

func (m *Metrics) RecordAssignment(server int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.assignments[server]++
}

func (m *Metrics) RecordPacketOut(server int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.packetsOut[server]++
}

func (m *Metrics) RecordPolicyPush(rules int, at time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.policyPushes++
	m.lastRuleCount = rules
	m.lastPush = at
}

func (m *Metrics) RecordPolicyFailure() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.policyFails++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:         time.Since(m.startTime),
		PacketsIn:      m.packetsIn,
		PacketsIgnored: m.ignored,
		PolicyPushes:   m.policyPushes,
		PolicyFailures: m.policyFails,
		LastRuleCount:  m.lastRuleCount,
		LastPush:       m.lastPush,
		Servers:        make(map[int]ServerMetrics),
	}

	for server, n := range m.assignments {
		sm := snap.Servers[server]
		sm.Assignments = n
		snap.Servers[server] = sm
		snap.Connections += n
	}

	for server, n := range m.packetsOut {
		sm := snap.Servers[server]
		sm.PacketsOut = n
		snap.Servers[server] = sm
	}

	return snap
}
