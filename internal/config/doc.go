// Package config loads, validates and watches the gateway configuration.
//
// Files are YAML. Values may reference the environment with ${VAR} or
// ${VAR:-default}; "$$" produces a literal dollar sign. Keys that are omitted
// keep the values from DefaultConfig.
//
//	cfg, err := config.LoadConfig("gateway.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
//
// A Watcher reloads the file on change and hands each valid configuration to
// a callback. Only the rate limit settings and the public path list are
// applied live; everything else requires a restart.
package config
