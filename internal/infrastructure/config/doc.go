// Package config handles loading and validating Sparkedge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The connection manager treats the file as the source of truth: it calls
// Load again on every connect() and reload(), so broker, security and tag
// settings are never cached across reconnects.
//
// Security Considerations:
//   - Sensitive values (broker passwords, history tokens) should be set via
//     environment variables rather than the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Node.NodeID)
package config
