// Package config loads the agent configuration: defaults, then a TOML
// file, then environment variables (env wins).
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Agent     AgentConfig     `toml:"agent"`
	LLM       LLMConfig       `toml:"llm"`
	Container ContainerConfig `toml:"container"`
	Workspace WorkspaceConfig `toml:"workspace"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Search    SearchConfig    `toml:"search"`
	API       APIConfig       `toml:"api"`
	EventLog  EventLogConfig  `toml:"event_log"`
	Database  DatabaseConfig  `toml:"database"`
	Observer  ObserverConfig  `toml:"observer"`
}

type AgentConfig struct {
	WakeIntervalSeconds int `toml:"wake_interval_seconds"`
	ToolTimeout         int `toml:"tool_timeout"`
	ContextMaxTokens    int `toml:"context_max_tokens"`
}

type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

type ContainerConfig struct {
	// Name of the running workspace container. Empty means host runtime.
	Name    string `toml:"name"`
	Runtime string `toml:"runtime"` // "podman" or "docker"
}

type WorkspaceConfig struct {
	Dir       string `toml:"dir"`
	SkillsDir string `toml:"skills_dir"`
}

type TelegramConfig struct {
	Token           string `toml:"token"`
	NotifyChannelID string `toml:"notify_channel_id"`
	AllowedUserID   string `toml:"allowed_user_id"`
}

type SearchConfig struct {
	BraveAPIKey string `toml:"brave_api_key"`
}

type APIConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

type EventLogConfig struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
	Path     string `toml:"path"` // local JSONL sink
}

type DatabaseConfig struct {
	// Driver selects the conversation store: "sqlite", "postgres" or
	// "memory".
	Driver      string `toml:"driver"`
	Path        string `toml:"path"`         // sqlite file
	PostgresDSN string `toml:"postgres_dsn"` // pgx connection string
}

type ObserverConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP HTTP endpoint
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Agent: AgentConfig{
			WakeIntervalSeconds: 1800,
			ToolTimeout:         60,
			ContextMaxTokens:    30000,
		},
		Container: ContainerConfig{Runtime: "podman"},
		Workspace: WorkspaceConfig{
			Dir:       filepath.Join(home, "vigil-workspace"),
			SkillsDir: filepath.Join(home, "vigil-workspace", "skills"),
		},
		API:      APIConfig{Host: "0.0.0.0", Port: 8000},
		Database: DatabaseConfig{Driver: "memory", Path: "vigil.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "vigil.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("VIGIL_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("VIGIL_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("VIGIL_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("VIGIL_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("VIGIL_NOTIFY_CHANNEL_ID"); v != "" {
		cfg.Telegram.NotifyChannelID = v
	}
	if v := os.Getenv("VIGIL_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if v := os.Getenv("VIGIL_CONTAINER_NAME"); v != "" {
		cfg.Container.Name = v
	}
	if v := os.Getenv("VIGIL_EVENT_LOG_ENDPOINT"); v != "" {
		cfg.EventLog.Endpoint = v
	}
	if v := os.Getenv("VIGIL_EVENT_LOG_API_KEY"); v != "" {
		cfg.EventLog.APIKey = v
	}
	if v := os.Getenv("VIGIL_EVENT_LOG_PATH"); v != "" {
		cfg.EventLog.Path = v
	}
	if v := os.Getenv("VIGIL_POSTGRES_DSN"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("VIGIL_WAKE_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.WakeIntervalSeconds = n
		}
	}
	if v := os.Getenv("VIGIL_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}
	return cfg
}
