package policy

import (
	"fmt"
	"sort"

	"github.com/angeloszaimis/sdn-load-balancer/internal/assignment"
	"github.com/angeloszaimis/sdn-load-balancer/internal/classifier"
)

// Compiler builds policies for one client-facing port.
type Compiler struct {
	clientPort assignment.Port
	ethType    uint16
	pipe       string
}

func NewCompiler(clientPort assignment.Port) *Compiler {
	return &Compiler{
		clientPort: clientPort,
		ethType:    EthTypeIPv4,
		pipe:       ControllerPipe,
	}
}

// ClientPort returns the client-facing port the compiler routes for.
func (c *Compiler) ClientPort() assignment.Port {
	return c.clientPort
}

// Compile turns a table snapshot into a full policy. It panics if the snapshot
// holds the same flow key twice, which a Table never produces.
func (c *Compiler) Compile(snapshot []assignment.Assignment) Policy {
	routes := make([]Route, 0, 2*len(snapshot))
	known := make([]classifier.FlowKey, 0, len(snapshot))
	seen := make(map[classifier.FlowKey]struct{}, len(snapshot))

	for _, a := range snapshot {
		if _, dup := seen[a.Key]; dup {
			panic(fmt.Sprintf("policy: flow key %d assigned twice", a.Key))
		}
		seen[a.Key] = struct{}{}
		known = append(known, a.Key)

		routes = append(routes,
			Route{Direction: ClientToServer, InPort: c.clientPort, Key: a.Key, OutPort: a.Server},
			Route{Direction: ServerToClient, InPort: a.Server, Key: a.Key, OutPort: c.clientPort},
		)
	}

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Key != routes[j].Key {
			return routes[i].Key < routes[j].Key
		}
		return routes[i].Direction < routes[j].Direction
	})
	sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })

	return Policy{
		EthType: c.ethType,
		Routes:  routes,
		Fallback: Fallback{
			InPort: c.clientPort,
			Known:  known,
			Pipe:   c.pipe,
		},
	}
}
