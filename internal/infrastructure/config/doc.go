// Package config handles loading and validating macro autopilot configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (MACROPILOT_*)
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT passwords, InfluxDB tokens) should be set via
// environment variables rather than committed to the config file.
//
// Configuration is loaded once at startup.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Vessel.ID, cfg.GetTickInterval())
package config
