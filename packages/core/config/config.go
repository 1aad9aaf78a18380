package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config represents the blitz configuration.
type Config struct {
	Manifest          string  `json:"manifest,omitempty"`          // path to the collected test manifest
	CachePath         string  `json:"cachePath,omitempty"`         // result cache database path
	CacheCapacity     int     `json:"cacheCapacity,omitempty"`     // LRU bound on persisted entries
	WarmThreshold     int     `json:"warmThreshold,omitempty"`     // selected count at which WarmWorkers kicks in
	ParallelThreshold int     `json:"parallelThreshold,omitempty"` // selected count at which FullParallel kicks in
	WarmPoolSize      int     `json:"warmPoolSize,omitempty"`      // worker count in WarmWorkers mode
	MaxWorkers        int     `json:"maxWorkers,omitempty"`        // cap on FullParallel fan-out
	StartRate         float64 `json:"startRate,omitempty"`         // test starts per second in FullParallel
	Baseline          string  `json:"baseline,omitempty"`          // change-set baseline revision
	Python            string  `json:"python,omitempty"`            // interpreter for the subprocess backend
	NoCache           *bool   `json:"noCache,omitempty"`
	Verbose           *bool   `json:"verbose,omitempty"`
	NoColor           *bool   `json:"noColor,omitempty"`
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetNoCache returns the no-cache setting, defaulting to false.
func (c *Config) GetNoCache() bool {
	return getBool(c.NoCache, false)
}

// GetVerbose returns the verbose setting, defaulting to false.
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false.
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".blitz.config.json",
	"blitz.config.json",
	".blitzrc",
	".blitzrc.json",
}

// LoadConfig loads configuration from the specified path or searches for
// config files in the current directory.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory.
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

// Merge merges another config into this one, with other taking precedence.
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Manifest != "" {
		result.Manifest = other.Manifest
	}
	if other.CachePath != "" {
		result.CachePath = other.CachePath
	}
	if other.CacheCapacity > 0 {
		result.CacheCapacity = other.CacheCapacity
	}
	if other.WarmThreshold > 0 {
		result.WarmThreshold = other.WarmThreshold
	}
	if other.ParallelThreshold > 0 {
		result.ParallelThreshold = other.ParallelThreshold
	}
	if other.WarmPoolSize > 0 {
		result.WarmPoolSize = other.WarmPoolSize
	}
	if other.MaxWorkers > 0 {
		result.MaxWorkers = other.MaxWorkers
	}
	if other.StartRate > 0 {
		result.StartRate = other.StartRate
	}
	if other.Baseline != "" {
		result.Baseline = other.Baseline
	}
	if other.Python != "" {
		result.Python = other.Python
	}

	// Boolean flags only override when explicitly set.
	if other.NoCache != nil {
		result.NoCache = other.NoCache
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	return &result
}

// SaveConfig saves the configuration to a file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
