// Package config loads the meter service configuration.
//
// Configuration comes from a YAML file, is completed with defaults, may be
// overridden by METER_SECTION_FIELD environment variables, and is validated
// as a whole:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("meter.yaml")
//
// Precedence, later wins:
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//
// Validate collects every field error into a single ValidationError.
//
// There is no package-level configuration instance. Callers load a Config
// once and pass it to the components that need it.
package config
