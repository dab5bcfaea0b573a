// Package config provides configuration loading and validation for the
// exam session controller. It handles YAML-based configuration with
// per-section validation and sensible defaults for omitted values.
package config
