package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the YAML configuration of the server command. Every
// field has a flag or environment override in main.go.
type ServerConfig struct {
	Database struct {
		// DSN is the PostgreSQL connection string. Empty selects the
		// in-memory store for local development.
		DSN          string `yaml:"dsn"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
	} `yaml:"database"`

	Crypto struct {
		// Exactly one key source must be set.
		KeyHex     string `yaml:"key_hex"`
		KeyFile    string `yaml:"key_file"`
		Passphrase string `yaml:"passphrase"`

		Vault struct {
			Address string `yaml:"address"`
			Token   string `yaml:"token"`
			Mount   string `yaml:"mount"`
			Path    string `yaml:"path"`
			Field   string `yaml:"field"`
		} `yaml:"vault"`
	} `yaml:"crypto"`

	Biometric struct {
		EmbeddingDim int     `yaml:"embedding_dim"`
		Threshold    float64 `yaml:"threshold"`
	} `yaml:"biometric"`

	Federation struct {
		MinParticipants int `yaml:"min_participants"`
	} `yaml:"federation"`

	// SnapshotBackends lists location URIs for model snapshot archival.
	SnapshotBackends []string `yaml:"snapshot_backends"`
}

// DefaultEmbeddingDim matches common face recognition models.
const DefaultEmbeddingDim = 128

// LoadConfig reads a YAML config file. An empty path returns defaults.
func LoadConfig(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	cfg.Biometric.EmbeddingDim = DefaultEmbeddingDim

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Biometric.EmbeddingDim <= 0 {
		cfg.Biometric.EmbeddingDim = DefaultEmbeddingDim
	}
	return cfg, nil
}
