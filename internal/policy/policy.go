package policy

import (
	"fmt"

	"github.com/angeloszaimis/sdn-load-balancer/internal/assignment"
	"github.com/angeloszaimis/sdn-load-balancer/internal/classifier"
)

const (
	EthTypeIPv4 uint16 = 0x0800
	IPProtoTCP  uint8  = 6
)

// ControllerPipe is the pipe name new connections are sent up on.
const ControllerPipe = "http"

type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "client-to-server"
	case ServerToClient:
		return "server-to-client"
	default:
		return "unknown"
	}
}

// Route forwards one direction of one connection. ClientToServer routes match
// on TCP source port, ServerToClient routes on TCP destination port.
type Route struct {
	Direction Direction
	InPort    assignment.Port
	Key       classifier.FlowKey
	OutPort   assignment.Port
}

// Fallback sends TCP traffic arriving on the client port to the controller
// unless its source port is one of Known.
type Fallback struct {
	InPort assignment.Port
	Known  []classifier.FlowKey
	Pipe   string
}

type Policy struct {
	EthType  uint16
	Routes   []Route
	Fallback Fallback
}

// Header holds the packet fields the policy matches on.
type Header struct {
	InPort  assignment.Port
	EthType uint16
	IPProto uint8
	TCPSrc  uint16
	TCPDst  uint16
}

type ActionKind int

const (
	ActionForward ActionKind = iota
	ActionController
)

type Action struct {
	Kind ActionKind
	Port assignment.Port
	Pipe string
}

func (a Action) String() string {
	if a.Kind == ActionController {
		return fmt.Sprintf("pipe(%s)", a.Pipe)
	}
	return fmt.Sprintf("port(%d)", a.Port)
}

func (r Route) matches(h Header) bool {
	if h.InPort != r.InPort || h.IPProto != IPProtoTCP {
		return false
	}

	switch r.Direction {
	case ClientToServer:
		return h.TCPSrc == uint16(r.Key)
	case ServerToClient:
		return h.TCPDst == uint16(r.Key)
	default:
		return false
	}
}

func (f Fallback) matches(h Header) bool {
	if h.InPort != f.InPort || h.IPProto != IPProtoTCP {
		return false
	}

	for _, k := range f.Known {
		if h.TCPSrc == uint16(k) {
			return false
		}
	}

	return true
}

// Evaluate returns the action the policy applies to a packet with header h,
// or false if the packet is dropped.
func (p Policy) Evaluate(h Header) (Action, bool) {
	if h.EthType != p.EthType {
		return Action{}, false
	}

	for _, r := range p.Routes {
		if r.matches(h) {
			return Action{Kind: ActionForward, Port: r.OutPort}, true
		}
	}

	if p.Fallback.matches(h) {
		return Action{Kind: ActionController, Pipe: p.Fallback.Pipe}, true
	}

	return Action{}, false
}

// RuleCount returns the number of match/action rules, fallback included.
func (p Policy) RuleCount() int {
	return len(p.Routes) + 1
}
