package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// oasisYAMLConfig mirrors the on-disk oasis.yaml structure: an engine
// section, a bedrock section, and a bot_session section, each optional.
type oasisYAMLConfig struct {
	DataDir    string          `yaml:"data_dir"`
	LLMBackend LLMBackendKind  `yaml:"llm_backend"`
	Engine     *EngineDefaults `yaml:"engine"`
	Bedrock    *BedrockConfig  `yaml:"bedrock"`
	BotSession *BotSessionConfig `yaml:"bot_session"`
}

// Initialize loads, merges, validates and returns ready-to-use
// configuration. This is the primary entry point for configuration
// loading, mirroring the teacher's Initialize(ctx, configDir) shape.
//
// Steps performed:
//  1. Load oasis.yaml from configDir (missing file is not an error; the
//     built-in defaults are used as-is).
//  2. Merge built-in defaults with user overrides via mergo.
//  3. Validate the merged configuration.
//  4. Return the Config, ready for use.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing oasis configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"max_rounds", stats.MaxRounds,
		"early_stop", stats.EarlyStop,
		"llm_backend", stats.LLMBackend,
		"data_dir", stats.DataDir)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	user, err := loadOasisYAML(configDir)
	if err != nil {
		return nil, err
	}

	// user sections are pre-seeded with the built-in defaults (see
	// loadOasisYAML), so empty values are copied too: an explicit false
	// or 0 in the file overrides the default.
	engine := DefaultEngineDefaults()
	if user.Engine != nil {
		if err := mergo.Merge(engine, user.Engine, mergo.WithOverride, mergo.WithOverwriteWithEmptyValue); err != nil {
			return nil, fmt.Errorf("failed to merge engine config: %w", err)
		}
	}

	bedrock := DefaultBedrockConfig()
	if user.Bedrock != nil {
		if err := mergo.Merge(bedrock, user.Bedrock, mergo.WithOverride, mergo.WithOverwriteWithEmptyValue); err != nil {
			return nil, fmt.Errorf("failed to merge bedrock config: %w", err)
		}
	}

	botSession := DefaultBotSessionConfig()
	if user.BotSession != nil {
		if err := mergo.Merge(botSession, user.BotSession, mergo.WithOverride, mergo.WithOverwriteWithEmptyValue); err != nil {
			return nil, fmt.Errorf("failed to merge bot_session config: %w", err)
		}
	}

	dataDir := user.DataDir
	if dataDir == "" {
		dataDir = "./data/topics"
	}

	llmBackend := user.LLMBackend
	if llmBackend == "" {
		llmBackend = LLMBackendBedrock
	}

	return &Config{
		configDir:  configDir,
		Engine:     engine,
		Bedrock:    bedrock,
		BotSession: botSession,
		DataDir:    dataDir,
		LLMBackend: llmBackend,
	}, nil
}

func loadOasisYAML(configDir string) (*oasisYAMLConfig, error) {
	path := filepath.Join(configDir, "oasis.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("no oasis.yaml found, using built-in defaults", "path", path)
			return &oasisYAMLConfig{}, nil
		}
		return nil, NewLoadError(path, err)
	}

	// Keys absent from the file keep these defaults; keys present replace them.
	cfg := oasisYAMLConfig{
		Engine:     DefaultEngineDefaults(),
		Bedrock:    DefaultBedrockConfig(),
		BotSession: DefaultBotSessionConfig(),
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	v := NewValidator(cfg)
	return v.ValidateAll()
}
