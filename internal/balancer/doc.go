// Package balancer handles controller events for the load balancer. Each
// packet-in is classified, its connection resolved to a server port, the full
// policy recompiled and pushed, and the packet itself sent on to the server.
package balancer
