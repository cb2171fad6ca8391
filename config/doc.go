// Package config loads the load balancer configuration from command-line
// flags, environment variables (prefixed LB_) and an optional YAML file,
// in that order of precedence. It defines the client and server ports, the
// controller endpoint, the admin listener and logging settings.
package config
