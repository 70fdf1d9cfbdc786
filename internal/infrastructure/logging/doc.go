// Package logging provides structured logging for the tag registry.
//
// It wraps log/slog so every component logs with the same handler, level
// and default attributes (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("api").Info("server started", "port", 8090)
//
// Never log secrets, tokens or passwords.
package logging
