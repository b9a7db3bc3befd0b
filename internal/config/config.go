// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the .codegraph/project.yaml project configuration,
// generalizing the teacher's project-config loader to the Neo4j-backed
// graph, LLM, and embedding settings this tool needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/codegraph/internal/errors"
)

const (
	defaultConfigDir  = ".codegraph"
	defaultConfigFile = "project.yaml"
	configVersion     = "1"
)

// Config represents the .codegraph/project.yaml configuration file.
type Config struct {
	Version     string        `yaml:"version"`
	ProjectID   string        `yaml:"project_id"`
	ProjectRoot string        `yaml:"project_root"`
	Neo4j       Neo4jConfig   `yaml:"neo4j"`
	Embedding   EmbedConfig   `yaml:"embedding"`
	LLM         LLMConfig     `yaml:"llm"`
	Indexing    IndexingConfig `yaml:"indexing"`
}

// Neo4jConfig names the graph database connection.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
}

// EmbedConfig names the embedding provider (pkg/embedding's vocabulary).
type EmbedConfig struct {
	Provider   string `yaml:"provider"` // ollama, openai, fake
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// LLMConfig names the RAG enrichment summarization provider
// (pkg/llm's --llm-api vocabulary: openai, deepseek, ollama, fake).
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// IndexingConfig names worker counts and exclusions for parse/ingest.
type IndexingConfig struct {
	NumParseWorkers  int      `yaml:"num_parse_workers"`
	NumLocalWorkers  int      `yaml:"num_local_workers"`
	NumRemoteWorkers int      `yaml:"num_remote_workers"`
	DefinesStrategy  string   `yaml:"defines_strategy"` // unwind-sequential, batched-parallel, isolated-parallel
	Exclude          []string `yaml:"exclude"`
}

// DefaultConfig returns sensible local-development defaults for projectID.
func DefaultConfig(projectID, projectRoot string) *Config {
	return &Config{
		Version:     configVersion,
		ProjectID:   projectID,
		ProjectRoot: projectRoot,
		Neo4j: Neo4jConfig{
			URI:  getEnv("NEO4J_URI", "bolt://localhost:7687"),
			User: getEnv("NEO4J_USER", "neo4j"),
		},
		Embedding: EmbedConfig{
			Provider:   "ollama",
			BaseURL:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
			Model:      getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			Dimensions: 768,
		},
		LLM: LLMConfig{
			Provider: "fake",
		},
		Indexing: IndexingConfig{
			NumParseWorkers:  8,
			NumLocalWorkers:  4,
			NumRemoteWorkers: 4,
			DefinesStrategy:  "batched-parallel",
			Exclude: []string{
				".git/**",
				"build/**",
				"*.o",
				"*.so",
			},
		},
	}
}

// Load reads configuration from configPath, or finds it automatically by
// walking up from the current directory when configPath is empty.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("CODEGRAPH_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("Failed to read %s", configPath),
			"Check file permissions and ensure the file exists",
			err,
		)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration format",
			"YAML parsing failed - the config file contains syntax errors",
			fmt.Sprintf("Edit %s to fix syntax errors", configPath),
			err,
		)
	}

	if cfg.Version != configVersion {
		return nil, errors.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("Config version '%s' is not supported (expected '%s')", cfg.Version, configVersion),
			fmt.Sprintf("Set version to '%s' in %s", configVersion, configPath),
			nil,
		)
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

// Save writes cfg to configPath as YAML, creating its parent directory.
func Save(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewInternalError(
			"Cannot encode configuration",
			"YAML marshaling failed unexpectedly",
			"This is a bug. Please report it with your configuration details",
			err,
		)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.NewPermissionError(
			"Cannot create configuration directory",
			fmt.Sprintf("Permission denied creating %s", dir),
			"Check directory permissions or run with appropriate privileges",
			err,
		)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.NewPermissionError(
			"Cannot write configuration file",
			fmt.Sprintf("Permission denied writing to %s", configPath),
			"Check file permissions and ensure sufficient disk space",
			err,
		)
	}
	return nil
}

// ConfigPath returns <dir>/.codegraph/project.yaml.
func ConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

func findConfigFile() (string, error) {
	if configPath := os.Getenv("CODEGRAPH_CONFIG_PATH"); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", errors.NewConfigError(
			"Configuration file not found",
			fmt.Sprintf("CODEGRAPH_CONFIG_PATH is set to '%s' but the file does not exist", configPath),
			"Fix the CODEGRAPH_CONFIG_PATH environment variable or unset it",
			nil,
		)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot access working directory",
			"Failed to determine current directory path",
			"Check system permissions and try again",
			err,
		)
	}

	for {
		configPath := ConfigPath(dir)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.NewConfigError(
		"Configuration not found",
		"No .codegraph/project.yaml file found in current directory or any parent directory",
		"Create .codegraph/project.yaml in the project root",
		nil,
	)
}

// applyEnvOverrides lets environment variables take precedence over the
// file, per spec.md §6's persisted-state + env var contract.
func (c *Config) applyEnvOverrides() {
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		c.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		c.Neo4j.User = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		c.Neo4j.Password = pass
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.BaseURL = host
	}
	if model := os.Getenv("OLLAMA_EMBED_MODEL"); model != "" {
		c.Embedding.Model = model
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Embedding.APIKey = key
		c.LLM.APIKey = key
	}
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
