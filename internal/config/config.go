package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/subnet/internal/artifact"
	"github.com/TobiSchelling/subnet/internal/database"
	"github.com/TobiSchelling/subnet/internal/loader"
	"github.com/TobiSchelling/subnet/internal/network"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// ErrInvalid marks configuration values that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Data    Data    `yaml:"data"`
	Filter  Filter  `yaml:"filter"`
	Network Network `yaml:"network"`
	Output  Output  `yaml:"output"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

type Data struct {
	Path        string `yaml:"path"`
	Period      string `yaml:"period"`
	Delimiter   string `yaml:"delimiter"`
	CountColumn string `yaml:"count_column"`
}

type Filter struct {
	ExcludedAuthors           []string `yaml:"excluded_authors"`
	BotSuffix                 string   `yaml:"bot_suffix"`
	MinCountBotExclusion      int64    `yaml:"min_count_bot_exclusion"`
	SubredditCommentThreshold int64    `yaml:"subreddit_comment_threshold"`
	ThresholdMode             string   `yaml:"threshold_mode"`
}

type Network struct {
	Weighting string `yaml:"weighting"`
}

type Output struct {
	DataDir string   `yaml:"data_dir"`
	Formats []string `yaml:"formats"`
	Rebuild bool     `yaml:"rebuild"`
}

type Server struct {
	Port     int           `yaml:"port"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for subnet.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "subnet")
}

// DataDir returns the XDG data directory for subnet.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "subnet")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/subnet/config.yaml > ./config.yaml
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
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'subnet init' to create a default config",
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
	defaults := network.DefaultOptions()
	cfg := &Config{
		Data: Data{
			Period:      database.CurrentPeriod(),
			Delimiter:   string(loader.DefaultDelimiter),
			CountColumn: loader.DefaultCountColumn,
		},
		Filter: Filter{
			ExcludedAuthors:           defaults.ExcludedAuthors,
			BotSuffix:                 defaults.BotSuffix,
			MinCountBotExclusion:      defaults.MinCountBotExclusion,
			SubredditCommentThreshold: defaults.SubredditCommentThreshold,
			ThresholdMode:             string(defaults.ThresholdMode),
		},
		Network: Network{Weighting: string(defaults.Weighting)},
		Server:  Server{Port: 8000, CacheTTL: 10 * time.Minute},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks the values a build depends on. The data path itself is
// checked when the loader runs.
func (c *Config) Validate() error {
	if err := c.ToBuildOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if utf8.RuneCountInString(c.Data.Delimiter) != 1 {
		return fmt.Errorf("%w: delimiter must be a single character, got %q", ErrInvalid, c.Data.Delimiter)
	}
	if c.Data.CountColumn == "" {
		return fmt.Errorf("%w: count_column must not be empty", ErrInvalid)
	}
	// The period names the artifact directory, so it must stay a plain label.
	if err := database.ValidatePeriod(c.Data.Period); err != nil {
		return fmt.Errorf("%w: data.period: %v", ErrInvalid, err)
	}
	if _, err := artifact.ParseFormats(c.Output.Formats); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalid, c.Server.Port)
	}
	if c.Server.CacheTTL < 0 {
		return fmt.Errorf("%w: cache_ttl must not be negative", ErrInvalid)
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ToBuildOptions maps the filter and network sections onto build options.
func (c *Config) ToBuildOptions() network.Options {
	return network.Options{
		ExcludedAuthors:           append([]string(nil), c.Filter.ExcludedAuthors...),
		BotSuffix:                 c.Filter.BotSuffix,
		MinCountBotExclusion:      c.Filter.MinCountBotExclusion,
		SubredditCommentThreshold: c.Filter.SubredditCommentThreshold,
		ThresholdMode:             network.ThresholdMode(c.Filter.ThresholdMode),
		Weighting:                 network.Weighting(c.Network.Weighting),
	}
}

// ToLoaderOptions maps the data section onto loader options.
func (c *Config) ToLoaderOptions() loader.Options {
	opts := loader.DefaultOptions()
	if r, _ := utf8.DecodeRuneInString(c.Data.Delimiter); r != utf8.RuneError {
		opts.Delimiter = r
	}
	if c.Data.CountColumn != "" {
		opts.CountColumn = c.Data.CountColumn
	}
	return opts
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the catalog database location inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "subnet.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
