package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Manifest:          "blitz.manifest.json",
		CachePath:         ".blitz/results.db",
		CacheCapacity:     10000,
		WarmThreshold:     20,
		ParallelThreshold: 100,
		WarmPoolSize:      4,
		MaxWorkers:        0, // available parallelism
		StartRate:         0, // unlimited
		Python:            "python3",
	}
}
