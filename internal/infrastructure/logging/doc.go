// Package logging provides structured logging for the macro autopilot.
//
// It wraps log/slog with JSON or text output, level filtering and default
// service and version fields on every entry.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	engine := macro.NewEngine(engineCfg, macro.Deps{Logger: logger.Component("engine")})
//	logger.Error("failed to connect", "error", err)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
