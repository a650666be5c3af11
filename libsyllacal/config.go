package libsyllacal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultScopes are the Google Calendar scopes the app requests.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/calendar.events",
}

// Config represents the application configuration
type Config struct {
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	RedirectURL  string   `json:"redirect_url,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`

	// Extraction capability settings. An empty API key disables the AI
	// extractor and the rule-based extractor is used instead.
	OpenAIAPIKey  string `json:"openai_api_key,omitempty"`
	OpenAIBaseURL string `json:"openai_base_url,omitempty"`
	OpenAIModel   string `json:"openai_model,omitempty"`

	// Timezone is the IANA zone used for normalization when the caller does
	// not supply one.
	Timezone string `json:"timezone,omitempty"`
}

// ConfigManager handles configuration persistence
type ConfigManager struct {
	configPath string
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() (*ConfigManager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".syllacal")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return &ConfigManager{
		configPath: filepath.Join(configDir, "config.json"),
	}, nil
}

// Save saves the configuration to disk
func (cm *ConfigManager) Save(config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Load loads the configuration from disk
func (cm *ConfigManager) Load() (*Config, error) {
	config := &Config{}

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if len(config.Scopes) == 0 {
		config.Scopes = DefaultScopes
	}
	if config.RedirectURL == "" {
		config.RedirectURL = "http://localhost:8484/callback"
	}
	if config.Timezone == "" {
		config.Timezone = "America/Los_Angeles"
	}
	if config.OpenAIModel == "" {
		config.OpenAIModel = "gpt-4o-mini"
	}

	// Secrets may come from the environment instead of the config file.
	if config.OpenAIAPIKey == "" {
		config.OpenAIAPIKey = os.Getenv("SYLLACAL_OPENAI_API_KEY")
	}
	if config.OpenAIAPIKey == "" {
		config.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if config.ClientSecret == "" {
		config.ClientSecret = os.Getenv("SYLLACAL_CLIENT_SECRET")
	}
}
