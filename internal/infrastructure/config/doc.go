// Package config loads and validates tuyatrace configuration.
//
// Configuration comes from a YAML file with hardcoded defaults underneath
// and TUYATRACE_* environment variable overrides on top. The credentials
// (tuya.access_id, tuya.access_secret) are the only required settings,
// so a config file is optional when they are supplied via environment.
//
// # Regions
//
// The vendor operates separate data centres; the region selector maps to
// both the OpenAPI base URL and the message-bus WebSocket endpoint.
// Valid selectors: cn, us, us-e, eu, in.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil { ... }
//	url, _ := cfg.Tuya.BaseURL()
package config
