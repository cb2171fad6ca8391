package assignment

import (
	"errors"
	"sync"

	"github.com/angeloszaimis/sdn-load-balancer/internal/classifier"
)

// ErrEmptyServerPool is returned when a table is built without any backends.
var ErrEmptyServerPool = errors.New("server pool is empty")

// Port is a physical switch port number.
type Port int

// ServerPool is the ordered list of ports backends are attached to.
type ServerPool []Port

// Assignment binds one flow key to the server port it was given.
type Assignment struct {
	Key    classifier.FlowKey `json:"flow_key"`
	Server Port               `json:"server_port"`
}

// Table holds every flow key seen so far and the next pool slot to hand out.
type Table struct {
	mutex   sync.Mutex
	pool    ServerPool
	ports   map[classifier.FlowKey]Port
	order   []classifier.FlowKey
	current int
}

// NewTable creates an empty table over a copy of pool.
func NewTable(pool ServerPool) (*Table, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyServerPool
	}

	p := make(ServerPool, len(pool))
	copy(p, pool)

	return &Table{
		pool:  p,
		ports: make(map[classifier.FlowKey]Port),
	}, nil
}

// Resolve returns the server port for key, assigning the next pool slot if
// the key has not been seen. created reports whether a new entry was made.
func (t *Table) Resolve(key classifier.FlowKey) (server Port, created bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if port, ok := t.ports[key]; ok {
		return port, false
	}

	port := t.pool[t.current]
	t.current = (t.current + 1) % len(t.pool)

	t.ports[key] = port
	t.order = append(t.order, key)

	return port, true
}

// Lookup returns the port assigned to key without creating an entry.
func (t *Table) Lookup(key classifier.FlowKey) (Port, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	port, ok := t.ports[key]
	return port, ok
}

// Assignments returns a snapshot of all entries in insertion order.
func (t *Table) Assignments() []Assignment {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.assignmentsLocked()
}

func (t *Table) assignmentsLocked() []Assignment {
	snapshot := make([]Assignment, 0, len(t.order))
	for _, key := range t.order {
		snapshot = append(snapshot, Assignment{Key: key, Server: t.ports[key]})
	}
	return snapshot
}

// Snapshot is a consistent view of the whole table.
type Snapshot struct {
	Pool        ServerPool
	Cursor      int
	Assignments []Assignment
}

// Snapshot returns the pool, cursor and entries read under one lock.
func (t *Table) Snapshot() Snapshot {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return Snapshot{
		Pool:        t.Pool(),
		Cursor:      t.current,
		Assignments: t.assignmentsLocked(),
	}
}

// Cursor returns the index into the pool of the next assignment.
func (t *Table) Cursor() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.current
}

// Len returns the number of assigned flow keys.
func (t *Table) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.order)
}

// Pool returns a copy of the server pool. The pool never changes after
// NewTable, so no lock is taken.
func (t *Table) Pool() ServerPool {
	p := make(ServerPool, len(t.pool))
	copy(p, t.pool)
	return p
}
