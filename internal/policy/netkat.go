package policy

import "encoding/json"

const (
	headerEthType  = "ethtype"
	headerIPProto  = "ipProto"
	headerTCPSrc   = "tcpsrcport"
	headerTCPDst   = "tcpdstport"
	headerLocation = "location"
)

type predNode struct {
	Type   string     `json:"type"`
	Header string     `json:"header,omitempty"`
	Value  any        `json:"value,omitempty"`
	Preds  []predNode `json:"preds,omitempty"`
	Pred   *predNode  `json:"pred,omitempty"`
}

type polNode struct {
	Type   string    `json:"type"`
	Pred   *predNode `json:"pred,omitempty"`
	Header string    `json:"header,omitempty"`
	Value  any       `json:"value,omitempty"`
	Pols   []polNode `json:"pols,omitempty"`
}

type locationNode struct {
	Type string `json:"type"`
	Port *int   `json:"port,omitempty"`
	Name string `json:"name,omitempty"`
}

func physical(port int) locationNode {
	return locationNode{Type: "physical", Port: &port}
}

func pipe(name string) locationNode {
	return locationNode{Type: "pipe", Name: name}
}

func test(header string, value any) predNode {
	return predNode{Type: "test", Header: header, Value: value}
}

func and(preds ...predNode) predNode {
	return predNode{Type: "and", Preds: preds}
}

// or of nothing is false; Frenetic rejects an empty preds list.
func or(preds ...predNode) predNode {
	if len(preds) == 0 {
		return predNode{Type: "false"}
	}
	return predNode{Type: "or", Preds: preds}
}

func neg(p predNode) predNode {
	return predNode{Type: "neg", Pred: &p}
}

func filter(p predNode) polNode {
	return polNode{Type: "filter", Pred: &p}
}

func modLocation(loc locationNode) polNode {
	return polNode{Type: "mod", Header: headerLocation, Value: loc}
}

func seq(pols ...polNode) polNode {
	return polNode{Type: "seq", Pols: pols}
}

func union(pols ...polNode) polNode {
	return polNode{Type: "union", Pols: pols}
}

func (r Route) node() polNode {
	portHeader := headerTCPSrc
	if r.Direction == ServerToClient {
		portHeader = headerTCPDst
	}

	return seq(
		filter(and(
			test(headerLocation, physical(int(r.InPort))),
			test(headerIPProto, int(IPProtoTCP)),
			test(portHeader, int(r.Key)),
		)),
		modLocation(physical(int(r.OutPort))),
	)
}

func (f Fallback) node() polNode {
	known := make([]predNode, 0, len(f.Known))
	for _, k := range f.Known {
		known = append(known, test(headerTCPSrc, int(k)))
	}

	return seq(
		filter(and(
			test(headerLocation, physical(int(f.InPort))),
			test(headerIPProto, int(IPProtoTCP)),
			neg(or(known...)),
		)),
		modLocation(pipe(f.Pipe)),
	)
}

func (p Policy) node() polNode {
	pols := make([]polNode, 0, len(p.Routes)+1)
	for _, r := range p.Routes {
		pols = append(pols, r.node())
	}
	pols = append(pols, p.Fallback.node())

	return seq(
		filter(test(headerEthType, int(p.EthType))),
		union(pols...),
	)
}

// MarshalJSON encodes the policy as Frenetic NetKAT JSON.
func (p Policy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.node())
}
