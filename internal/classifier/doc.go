// Package classifier extracts the flow key of a packet delivered by the
// controller. A frame is decoded in fixed order (Ethernet, IPv4, TCP) and the
// TCP source port is returned when every layer is present.
package classifier
