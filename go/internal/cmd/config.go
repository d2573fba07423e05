package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML server configuration. Database settings come from
// the environment (dbconfig), everything else from here.
type Config struct {
	Server struct {
		Port               string        `yaml:"port"`
		StatusPushInterval time.Duration `yaml:"status_push_interval"`
	} `yaml:"server"`

	Sweeper struct {
		BatchSize int32 `yaml:"batch_size"`
	} `yaml:"sweeper"`

	Violations struct {
		// Limits maps violation kind to its disqualification threshold;
		// null means tracked but unbounded.
		Limits map[string]*int `yaml:"limits"`
	} `yaml:"violations"`
}

func loadConfig(path string) (*Config, error) {
	var config Config
	config.Server.Port = getEnv("PORT", "8080")
	config.Server.StatusPushInterval = 5 * time.Second
	config.Sweeper.BatchSize = 100

	if path == "" {
		return &config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Server.Port == "" {
		config.Server.Port = getEnv("PORT", "8080")
	}
	if config.Sweeper.BatchSize <= 0 {
		config.Sweeper.BatchSize = 100
	}
	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
