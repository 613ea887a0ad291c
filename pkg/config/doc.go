// Package config provides configuration management for policyhub.
//
// Configuration is read from a YAML file, completed with defaults, overridden
// from the environment and validated as a whole:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("policyhub.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention POLICYHUB_SECTION_FIELD.
// For example:
//
//   - POLICYHUB_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - POLICYHUB_JOURNAL_BACKEND overrides journal.backend
//   - POLICYHUB_SEED_PATHS overrides seed.paths (comma separated)
//
// # Configuration Precedence
//
// Values are applied in the following order (later overrides earlier):
//
//  1. Default values
//  2. YAML configuration file
//  3. Environment variables
//
// # Validation
//
// Validate collects every problem into a ValidationError so that all of them
// can be reported at once.
package config
