// Package config manages the electricsheep configuration file
// (~/.config/electricsheep/config.toml) and the data paths derived from it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Environment variables that override the file.
const (
	EnvConfig          = "ELECTRICSHEEP_CONFIG"
	EnvDataDir         = "ELECTRICSHEEP_DATA_DIR"
	EnvDailyTokenLimit = "ELECTRICSHEEP_DAILY_TOKEN_LIMIT"
	EnvEncryptionKey   = "DREAM_ENCRYPTION_KEY"
)

// Config holds every setting.
type Config struct {
	Agent  AgentConfig  `toml:"agent"`
	Keys   KeysConfig   `toml:"keys"`
	Paths  PathsConfig  `toml:"paths"`
	Dream  DreamConfig  `toml:"dream"`
	Budget BudgetConfig `toml:"budget"`
	Memory MemoryConfig `toml:"memory"`
	Log    LogConfig    `toml:"log"`
}

// AgentConfig selects the generation provider.
type AgentConfig struct {
	Name       string `toml:"name"`
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	OllamaHost string `toml:"ollama_host"`
}

type KeysConfig struct {
	Anthropic string `toml:"anthropic"`
	OpenAI    string `toml:"openai"`
	Gemini    string `toml:"gemini"`
}

// PathsConfig locates the data files. Empty entries derive from DataDir.
type PathsConfig struct {
	DataDir     string `toml:"data_dir"`
	DeepDB      string `toml:"deep_db"`
	StateFile   string `toml:"state_file"`
	KeyFile     string `toml:"key_file"`
	DreamsDir   string `toml:"dreams_dir"`
	WorkingFile string `toml:"working_file"`
}

type DreamConfig struct {
	// EncryptionKey is a base64 32-byte key. When empty the key file is
	// used, and created on first run.
	EncryptionKey    string `toml:"encryption_key"`
	MaxOutputTokens  int    `toml:"max_output_tokens"`
	InsightMaxTokens int    `toml:"insight_max_tokens"`
	MaxPromptTokens  int    `toml:"max_prompt_tokens"`
	MaxAttempts      int    `toml:"max_attempts"`
	BaseDelayMS      int    `toml:"base_delay_ms"`
	MaxDelayMS       int    `toml:"max_delay_ms"`
}

type BudgetConfig struct {
	// DailyTokenLimit of 0 means unbounded.
	DailyTokenLimit int `toml:"daily_token_limit"`
}

type MemoryConfig struct {
	WorkingMaxEntries int `toml:"working_max_entries"`
	ContextTokens     int `toml:"context_tokens"`
}

type LogConfig struct {
	Mode  string `toml:"mode"`
	Level string `toml:"level"`
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Agent: AgentConfig{
			Name:       "Electric Sheep",
			Provider:   "claude",
			OllamaHost: "http://localhost:11434",
		},
		Dream: DreamConfig{
			MaxOutputTokens:  2000,
			InsightMaxTokens: 150,
			MaxPromptTokens:  12000,
			MaxAttempts:      3,
			BaseDelayMS:      1000,
			MaxDelayMS:       10000,
		},
		Memory: MemoryConfig{
			WorkingMaxEntries: 50,
			ContextTokens:     2000,
		},
		Log: LogConfig{
			Mode: "development",
		},
	}
}

// Path returns the config file path: $ELECTRICSHEEP_CONFIG if set,
// otherwise ~/.config/electricsheep/config.toml.
func Path() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "electricsheep", "config.toml"), nil
}

// DefaultDataDir is ~/.local/share/electricsheep.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "electricsheep"), nil
}

// Load reads the config at Path, applying defaults, environment overrides
// and derived paths. A missing file is not an error.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		cfg := Default()
		return cfg, cfg.finish()
	}
	return LoadFile(path)
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.finish()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Keys.Anthropic = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Keys.OpenAI = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Keys.Gemini = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv(EnvEncryptionKey); v != "" {
		c.Dream.EncryptionKey = v
	}
	if v := os.Getenv(EnvDailyTokenLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("config: %s must be a non-negative integer, got %q", EnvDailyTokenLimit, v)
		}
		c.Budget.DailyTokenLimit = n
	}
	return nil
}

// finish fills derived paths.
func (c *Config) finish() error {
	if c.Paths.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return fmt.Errorf("config: data dir: %w", err)
		}
		c.Paths.DataDir = dir
	}
	c.Paths.Resolve()
	return nil
}

// Resolve derives empty paths from DataDir.
func (p *PathsConfig) Resolve() {
	derive := func(dst *string, elem ...string) {
		if *dst == "" {
			*dst = filepath.Join(append([]string{p.DataDir}, elem...)...)
		}
	}
	derive(&p.DeepDB, "memory", "deep.db")
	derive(&p.StateFile, "memory", "state.json")
	derive(&p.WorkingFile, "memory", "working.json")
	derive(&p.KeyFile, ".dream_key")
	derive(&p.DreamsDir, "dreams")
}

// APIKey returns the key configured for provider.
func (c Config) APIKey(provider string) string {
	switch provider {
	case "claude":
		return c.Keys.Anthropic
	case "openai":
		return c.Keys.OpenAI
	case "gemini":
		return c.Keys.Gemini
	}
	return ""
}

// Save writes cfg to Path.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile writes cfg to path with owner-only permissions, since it may
// hold API keys.
func SaveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return nil
}
