package classifier

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// FlowKey identifies one client connection by its TCP source port.
type FlowKey uint16

// Frame is the decoded view of a raw Ethernet frame. IPv4 and TCP are nil
// when the frame does not carry them or they could not be decoded.
type Frame struct {
	Ethernet *layers.Ethernet
	IPv4     *layers.IPv4
	TCP      *layers.TCP
}

// Decode parses raw bytes as Ethernet, then IPv4, then TCP. Decoding stops at
// the first missing or malformed layer; the layers decoded so far are kept.
func Decode(data []byte) Frame {
	var (
		eth     layers.Ethernet
		ip4     layers.IPv4
		tcp     layers.TCP
		decoded []gopacket.LayerType
		frame   Frame
	)

	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &ip4, &tcp)
	parser.IgnoreUnsupported = true

	// Errors only mean a layer was truncated or malformed. What was decoded
	// before the failure is still reported through decoded.
	_ = parser.DecodeLayers(data, &decoded)

	for _, lt := range decoded {
		switch lt {
		case layers.LayerTypeEthernet:
			frame.Ethernet = &eth
		case layers.LayerTypeIPv4:
			frame.IPv4 = &ip4
		case layers.LayerTypeTCP:
			frame.TCP = &tcp
		}
	}

	return frame
}

// FlowKey returns the TCP source port of the frame if it is a TCP segment
// carried in IPv4.
func (f Frame) FlowKey() (FlowKey, bool) {
	if f.IPv4 == nil || f.IPv4.Protocol != layers.IPProtocolTCP {
		return 0, false
	}

	if f.TCP == nil {
		return 0, false
	}

	return FlowKey(f.TCP.SrcPort), true
}

// Classify returns the flow key of a raw frame. Frames that are not IPv4/TCP,
// or that fail to decode, have no key.
func Classify(data []byte) (FlowKey, bool) {
	return Decode(data).FlowKey()
}
