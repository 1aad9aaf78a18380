// Package config handles configuration loading and management for blitz.
//
// It provides functionality for:
//   - Loading configuration from .blitz.config.json and blitzrc variants
//   - Default configuration values
//   - Merging CLI overrides over file-provided settings
package config
