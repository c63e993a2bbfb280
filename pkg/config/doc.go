// Package config loads the bridge's configuration from the environment
// or a YAML file. Missing required settings produce a ConfigError, on
// which the bridge fails closed at startup.
package config
