package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Platform Platform `yaml:"platform"`
	Scrape   Scrape   `yaml:"scrape"`
	Session  Session  `yaml:"session"`
	Batch    Batch    `yaml:"batch"`
	Output   Output   `yaml:"output"`
	Logging  Logging  `yaml:"logging"`
}

type Platform struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Scrape struct {
	StoryWorkers      int  `yaml:"story_workers"`
	ChapterWorkers    int  `yaml:"chapter_workers"`
	MaxChapters       int  `yaml:"max_chapters"` // 0 = all
	MaxComments       int  `yaml:"max_comments"` // per chapter, 0 = all
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Headless          bool `yaml:"headless"`        // browser-session knob, forwarded to scrape children
	BlockResources    bool `yaml:"block_resources"` // browser-session knob, forwarded to scrape children
	TimeoutSeconds    int  `yaml:"timeout_seconds"`
}

type Session struct {
	PollSeconds      int      `yaml:"poll_seconds"`
	MaxWaitSeconds   int      `yaml:"max_wait_seconds"`
	SettleChecks     int      `yaml:"settle_checks"`
	SettleIntervalMS int      `yaml:"settle_interval_ms"`
	IdleTimeoutMS    int      `yaml:"idle_timeout_ms"`
	Markers          []string `yaml:"markers"`
}

type Batch struct {
	QueueFile       string `yaml:"queue_file"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
	ErrorLog        string `yaml:"error_log"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for novelharvest.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "novelharvest")
}

// DataDir returns the XDG data directory for novelharvest.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "novelharvest")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/novelharvest/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'novelharvest init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Platform: Platform{
			Name: "Webnovel",
			URL:  "https://www.webnovel.com",
		},
		Scrape: Scrape{
			StoryWorkers:      1,
			ChapterWorkers:    3,
			RequestsPerMinute: 40,
			TimeoutSeconds:    120,
		},
		Session: Session{
			PollSeconds:      3,
			MaxWaitSeconds:   60,
			SettleChecks:     3,
			SettleIntervalMS: 500,
			IdleTimeoutMS:    5000,
			Markers: []string{
				"just a moment",
				"checking your browser",
				"challenges.cloudflare.com",
				"please unblock",
			},
		},
		Batch: Batch{
			QueueFile:       "books_queue.txt",
			CooldownSeconds: 10,
			ErrorLog:        "batch_errors.log",
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// JSONDir returns the directory where acquired story records are written.
func (c *Config) JSONDir() string {
	return filepath.Join(c.GetDataDir(), "json")
}

// CookieDir returns the directory where session cookies are persisted.
func (c *Config) CookieDir() string {
	return filepath.Join(c.GetDataDir(), "cookies")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
