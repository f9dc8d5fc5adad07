package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Agent     AgentConfig     `koanf:"agent"`
	Log       LogConfig       `koanf:"log"`
	Store     StoreConfig     `koanf:"store"`
	Memory    MemoryConfig    `koanf:"memory"`
	Model     ModelConfig     `koanf:"model"`
	Runtime   RuntimeConfig   `koanf:"runtime"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	MCP       MCPConfig       `koanf:"mcp"`
}

type AgentConfig struct {
	Name          string `koanf:"name"`
	CharacterPath string `koanf:"character_path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type StoreConfig struct {
	Driver string `koanf:"driver"` // sqlite, inmemory
	DSN    string `koanf:"dsn"`
}

type MemoryConfig struct {
	Provider         string  `koanf:"provider"` // store, qdrant
	QdrantAddr       string  `koanf:"qdrant_addr"`
	EmbedderProvider string  `koanf:"embedder_provider"` // ollama
	EmbedderBaseURL  string  `koanf:"embedder_base_url"`
	EmbedderModel    string  `koanf:"embedder_model"`
	MatchThreshold   float64 `koanf:"match_threshold"`
}

type ModelConfig struct {
	Provider string `koanf:"provider"` // ollama, scripted
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type RuntimeConfig struct {
	TaskSweepInterval time.Duration `koanf:"task_sweep_interval"`
	TaskSweepTimeout  time.Duration `koanf:"task_sweep_timeout"`
	RunTimeout        time.Duration `koanf:"run_timeout"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type MCPConfig struct {
	Servers []MCPServerConfig `koanf:"servers"`
}

type MCPServerConfig struct {
	Name    string   `koanf:"name"`
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
	URL     string   `koanf:"url"`
}

// Load reads configuration from defaults, an optional YAML file, and
// TELOS_-prefixed environment variables (TELOS_MODEL_PROVIDER -> model.provider).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("agent.name", "telos")
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("store.driver", "sqlite")
	k.Set("store.dsn", "telos.db")

	k.Set("memory.provider", "store")
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.embedder_provider", "ollama")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")
	k.Set("memory.match_threshold", 0.75)

	k.Set("model.provider", "ollama")
	k.Set("model.model", "llama3.1")
	k.Set("model.base_url", "http://localhost:11434")

	k.Set("runtime.task_sweep_interval", "1s")
	k.Set("runtime.task_sweep_timeout", "30s")
	k.Set("runtime.run_timeout", "60s")

	k.Set("telemetry.exporter", "stdout")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (TELOS_MODEL_PROVIDER -> model.provider)
	if err := k.Load(env.Provider("TELOS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TELOS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithProfile loads the base config and overlays a profile-specific
// file (config.yaml + config.dev.yaml) when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	k := koanf.New(".")

	base, err := Load(path)
	if err != nil {
		return nil, err
	}

	profilePath := profileConfigPath(path, profile)
	if profilePath == "" {
		return base, nil
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}
	if err := k.Load(file.Provider(profilePath), yaml.Parser()); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// profileConfigPath returns the path of the profile override file
// (config.yaml, dev -> config.dev.yaml), or "" when it does not exist.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	dir := filepath.Dir(base)
	ext := filepath.Ext(base)
	name := filepath.Base(base)
	name = name[:len(name)-len(ext)]

	p := filepath.Join(dir, name+"."+profile+ext)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
