package balancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/angeloszaimis/sdn-load-balancer/internal/assignment"
	"github.com/angeloszaimis/sdn-load-balancer/internal/bridge"
	"github.com/angeloszaimis/sdn-load-balancer/internal/classifier"
	"github.com/angeloszaimis/sdn-load-balancer/internal/metrics"
	"github.com/angeloszaimis/sdn-load-balancer/internal/policy"
)

// Controller is the part of the SDN controller the balancer drives.
type Controller interface {
	UpdatePolicy(ctx context.Context, pol policy.Policy) error
	PacketOut(ctx context.Context, pkt bridge.PacketOut) error
}

// Recorder receives metric events. *metrics.Collector implements it.
type Recorder interface {
	Emit(event metrics.Event) bool
}

type noopRecorder struct{}

func (noopRecorder) Emit(metrics.Event) bool { return true }

type LoadBalancer struct {
	logger     *slog.Logger
	table      *assignment.Table
	compiler   *policy.Compiler
	controller Controller
	events     Recorder

	// pushMutex orders snapshot, compile and push so the last policy sent
	// always reflects the newest table state.
	pushMutex sync.Mutex
	mutex     sync.RWMutex
	current   policy.Policy
}

func NewLoadBalancer(
	logger *slog.Logger,
	table *assignment.Table,
	compiler *policy.Compiler,
	controller Controller,
	events Recorder,
) *LoadBalancer {
	if events == nil {
		events = noopRecorder{}
	}

	return &LoadBalancer{
		logger:     logger,
		table:      table,
		compiler:   compiler,
		controller: controller,
		events:     events,
		current:    compiler.Compile(nil),
	}
}

// Connected installs the current policy when the controller comes up.
func (lb *LoadBalancer) Connected(ctx context.Context) error {
	return lb.pushPolicy(ctx)
}

// PacketIn handles one packet the policy sent to the controller. Packets
// without a TCP flow key are ignored.
func (lb *LoadBalancer) PacketIn(ctx context.Context, pkt bridge.PacketIn) error {
	lb.events.Emit(metrics.Event{Type: metrics.EventPacketIn})

	key, ok := classifier.Classify(pkt.Payload.Data)
	if !ok {
		lb.logger.Debug("Ignoring packet without TCP flow key",
			slog.Uint64("switch_id", pkt.SwitchID),
			slog.Int("port_id", pkt.PortID),
			slog.Int("bytes", len(pkt.Payload.Data)))
		lb.events.Emit(metrics.Event{Type: metrics.EventPacketIgnored})
		return nil
	}

	server, created := lb.table.Resolve(key)
	if created {
		lb.events.Emit(metrics.Event{Type: metrics.EventAssignmentCreated, ServerPort: int(server)})
	}

	lb.logger.Info("Sending traffic from TCP port to switch port",
		slog.Int("src_port", int(key)),
		slog.Int("server_port", int(server)),
		slog.Bool("new", created))

	pushErr := lb.pushPolicy(ctx)

	// No address translation: the packet goes out unchanged.
	inPort := pkt.PortID
	err := lb.controller.PacketOut(ctx, bridge.PacketOut{
		SwitchID: pkt.SwitchID,
		InPort:   &inPort,
		OutPort:  int(server),
		Payload:  pkt.Payload,
	})
	if err != nil {
		err = fmt.Errorf("packet out to port %d: %w", server, err)
	} else {
		lb.events.Emit(metrics.Event{Type: metrics.EventPacketOut, ServerPort: int(server)})
	}

	return errors.Join(pushErr, err)
}

func (lb *LoadBalancer) pushPolicy(ctx context.Context) error {
	lb.pushMutex.Lock()
	defer lb.pushMutex.Unlock()

	pol := lb.compiler.Compile(lb.table.Assignments())

	if err := lb.controller.UpdatePolicy(ctx, pol); err != nil {
		lb.events.Emit(metrics.Event{Type: metrics.EventPolicyFailed})
		return fmt.Errorf("update policy: %w", err)
	}

	lb.mutex.Lock()
	lb.current = pol
	lb.mutex.Unlock()

	lb.events.Emit(metrics.Event{Type: metrics.EventPolicyPushed, Rules: pol.RuleCount()})
	return nil
}

// Policy returns the policy the controller last accepted. Before the first
// successful push it is the fallback-only policy.
func (lb *LoadBalancer) Policy() policy.Policy {
	lb.mutex.RLock()
	defer lb.mutex.RUnlock()
	return lb.current
}

func (lb *LoadBalancer) Table() *assignment.Table {
	return lb.table
}
