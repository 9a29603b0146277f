package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings is the optional user file <data dir>/config.yaml.
type Settings struct {
	AurHelper  string `yaml:"aur_helper"`
	Escalation string `yaml:"escalation"`
	LogLevel   string `yaml:"log_level"`
}

type Config struct {
	DataDir        string
	DBPath         string
	LogPath        string
	UserPlanDir    string
	ProjectPlanDir string

	AurHelper  string
	Escalation string
	LogLevel   slog.Level
}

func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("XERO_TOOLKIT_DATA_DIR", filepath.Join(homeDir, ".xero-toolkit"))

	c := &Config{
		DataDir:        dataDir,
		DBPath:         filepath.Join(dataDir, "xero-toolkit.db"),
		LogPath:        filepath.Join(dataDir, "xero-toolkit.log"),
		UserPlanDir:    filepath.Join(dataDir, "plans"),
		ProjectPlanDir: ".xero-toolkit/plans",
		Escalation:     "pkexec",
		LogLevel:       slog.LevelInfo,
	}

	settings, err := LoadSettings(c.SettingsPath())
	if err != nil {
		return nil, err
	}
	if err := c.apply(settings); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "config.yaml")
}

// LoadSettings reads a settings file. A missing file yields empty settings.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &s, nil
}

// apply layers the file settings and then the environment over the defaults.
func (c *Config) apply(s *Settings) error {
	if s.AurHelper != "" {
		c.AurHelper = s.AurHelper
	}
	if s.Escalation != "" {
		c.Escalation = s.Escalation
	}

	c.AurHelper = getEnv("XERO_TOOLKIT_AUR_HELPER", c.AurHelper)
	c.Escalation = getEnv("XERO_TOOLKIT_ESCALATION", c.Escalation)

	level := getEnv("XERO_TOOLKIT_LOG_LEVEL", s.LogLevel)
	if level != "" {
		parsed, err := ParseLevel(level)
		if err != nil {
			return err
		}
		c.LogLevel = parsed
	}
	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(c.UserPlanDir, 0755); err != nil {
		return err
	}
	return nil
}

// WorkspacesDir holds the per-run output archives.
func (c *Config) WorkspacesDir() string {
	return filepath.Join(c.DataDir, "runs")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
