// Package config loads the proxy engine's static configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config is the immutable configuration record read once at startup.
type Config struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	ThreadPoolSize     int    `json:"thread_pool_size"`
	Backlog            int    `json:"backlog"`
	BlockedDomainsFile string `json:"blocked_domains_file"`
	LogFile            string `json:"log_file"`
}

// defaults mirrors the exact defaults listed in the external interface spec.
func defaults() Config {
	return Config{
		Host:               "127.0.0.1",
		Port:               8888,
		ThreadPoolSize:     10,
		Backlog:            100,
		BlockedDomainsFile: "config/blocked_domains.txt",
		LogFile:            "logs/proxy.log",
	}
}

// Load reads configuration from the JSON file at path. Unknown keys are
// ignored. If the file does not exist, a default config file is written at
// path and the defaults are returned.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeDefault(path, cfg); writeErr != nil {
				return cfg, writeErr
			}
			return cfg, nil
		}
		return cfg, err
	}

	// Decode into the same struct so fields absent from the file keep their
	// defaults and unrecognised keys are silently ignored by the decoder.
	if err := json.Unmarshal(data, &cfg); err != nil {
		return defaults(), err
	}

	return cfg, nil
}

func writeDefault(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
