// Package config handles loading and validating tag registry configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with TAGREGISTRY_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT and Valkey passwords, the InfluxDB token, the JWT
// secret) should be set through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Signals.Source)
package config
