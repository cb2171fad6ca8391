// Package policy compiles the assignment table into a network-wide
// forwarding policy.
//
// The compiled policy has three parts:
//
//   - a pair of routes per connection: client to server by TCP source port,
//     and server to client by TCP destination port
//   - one fallback sending client traffic with an unknown source port to the
//     controller, so new connections are seen reactively
//   - an outer filter restricting everything to IPv4 frames
//
// Compilation is a pure function of the table snapshot. Routes are sorted so
// that compiling any permutation of the same snapshot gives an equal Policy.
//
// A Policy encodes to the NetKAT JSON accepted by the Frenetic controller's
// update_json endpoint.
package policy
