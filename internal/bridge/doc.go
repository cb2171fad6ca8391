// Package bridge connects the load balancer to a Frenetic controller over its
// HTTP API.
//
// The controller delivers events by long poll on /{client}/event. The bridge
// polls one event at a time and hands each to an EventHandler before polling
// again, so handlers run on a single logical event loop.
//
// Outbound, the bridge installs policies with /{client}/update_json and emits
// packets with /pkt_out.
package bridge
