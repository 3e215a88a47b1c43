// Package config loads settings from the config file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/harrisonrobin/tasknotion/pkg/auth"
	"github.com/harrisonrobin/tasknotion/pkg/logging"
	"github.com/harrisonrobin/tasknotion/pkg/notion"
	"github.com/harrisonrobin/tasknotion/pkg/reconcile"
	"github.com/harrisonrobin/tasknotion/pkg/schedule"
	"github.com/joho/godotenv"
)

const (
	xdgAppName = "tasknotion"
	configFile = "config.toml"
	envFile    = ".env"
	dbFile     = "tasknotion.db"
	lockFile   = "tasknotion.lock"

	defaultListen  = ":3000"
	defaultTimeout = 30 * time.Second
)

// Duration is a time.Duration that reads from strings such as "10s" or "1m30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	LogLevel string `toml:"log_level"`
	StateDir string `toml:"state_dir"`

	Notion NotionConfig `toml:"notion"`
	Google GoogleConfig `toml:"google"`
	Sync   SyncConfig   `toml:"sync"`
	Server ServerConfig `toml:"server"`

	// Path of the file the config was read from, empty if none existed.
	Path string `toml:"-"`
}

type NotionConfig struct {
	APIKey     string           `toml:"api_key"`
	DatabaseID string           `toml:"database_id"`
	Properties PropertiesConfig `toml:"properties"`
}

// PropertiesConfig names the database columns.
type PropertiesConfig struct {
	Title    string `toml:"title"`
	TaskList string `toml:"task_list"`
	Status   string `toml:"status"`
	Due      string `toml:"due"`
}

type GoogleConfig struct {
	CredentialsFile string `toml:"credentials_file"`
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	RedirectURI     string `toml:"redirect_uri"`
}

type SyncConfig struct {
	Interval    Duration `toml:"interval"`
	Identity    string   `toml:"identity"`
	Concurrency int      `toml:"concurrency"`
	Timeout     Duration `toml:"timeout"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

// GetConfigDir returns ~/.config/tasknotion.
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

// GetConfigPath returns the default config file location.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	props := notion.DefaultProperties()
	return &Config{
		LogLevel: "info",
		Notion: NotionConfig{
			Properties: PropertiesConfig{
				Title:    props.Title,
				TaskList: props.TaskList,
				Status:   props.Status,
				Due:      props.Due,
			},
		},
		Sync: SyncConfig{
			Interval:    Duration{schedule.DefaultInterval},
			Identity:    string(reconcile.IdentityTitle),
			Concurrency: 1,
			Timeout:     Duration{defaultTimeout},
		},
		Server: ServerConfig{Listen: defaultListen},
	}
}

// Load reads the config file at path, or the default location when path is empty, then
// applies .env files and environment overrides. A missing default file is not an error; a
// missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	} else {
		cfg.Path = path
	}

	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Dir(path)
	}
	cfg.StateDir = expandHome(cfg.StateDir)

	if err := loadDotEnv(envFile, filepath.Join(filepath.Dir(path), envFile)); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads the files that exist. Variables already set in the environment win.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Notion.APIKey, "NOTION_API_KEY")
	setString(&c.Notion.DatabaseID, "NOTION_DATABASE_ID")
	setString(&c.Google.ClientID, "CLIENT_ID")
	setString(&c.Google.ClientSecret, "CLIENT_SECRET")
	setString(&c.Google.RedirectURI, "REDIRECT_URI")
	setString(&c.LogLevel, "TASKNOTION_LOG_LEVEL")
	setString(&c.Server.Listen, "TASKNOTION_LISTEN")
	setString(&c.Sync.Identity, "TASKNOTION_IDENTITY")

	if v := os.Getenv("TASKNOTION_INTERVAL"); v != "" {
		if err := c.Sync.Interval.UnmarshalText([]byte(v)); err != nil {
			// Bare numbers are seconds.
			secs, convErr := strconv.Atoi(v)
			if convErr != nil {
				return fmt.Errorf("invalid TASKNOTION_INTERVAL %q: %w", v, err)
			}
			c.Sync.Interval = Duration{time.Duration(secs) * time.Second}
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate rejects values no component can run with. Credentials are checked separately
// by RequireNotion because the auth command runs without them.
func (c *Config) Validate() error {
	if c.Sync.Interval.Duration <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.Sync.Interval.Duration)
	}
	if c.Sync.Timeout.Duration <= 0 {
		return fmt.Errorf("sync timeout must be positive, got %s", c.Sync.Timeout.Duration)
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync concurrency must be at least 1, got %d", c.Sync.Concurrency)
	}
	switch reconcile.Identity(c.Sync.Identity) {
	case reconcile.IdentityTitle, reconcile.IdentityLinked:
	default:
		return fmt.Errorf("unknown identity mode %q (want %q or %q)", c.Sync.Identity, reconcile.IdentityTitle, reconcile.IdentityLinked)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	p := c.Notion.Properties
	if p.Title == "" || p.TaskList == "" || p.Status == "" || p.Due == "" {
		return fmt.Errorf("notion property names must not be empty")
	}
	return nil
}

// RequireNotion reports a missing Notion token or database.
func (c *Config) RequireNotion() error {
	var missing []string
	if c.Notion.APIKey == "" {
		missing = append(missing, "NOTION_API_KEY")
	}
	if c.Notion.DatabaseID == "" {
		missing = append(missing, "NOTION_DATABASE_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing Notion settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// NotionProperties converts the configured column names.
func (c *Config) NotionProperties() notion.Properties {
	p := c.Notion.Properties
	return notion.Properties{Title: p.Title, TaskList: p.TaskList, Status: p.Status, Due: p.Due}
}

// CredentialsPath is the Google client secrets file, relative paths resolved against the
// config directory.
func (c *Config) CredentialsPath() string {
	p := c.Google.CredentialsFile
	if p == "" {
		p = auth.ClientSecretsFile
	}
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir(), p)
}

func (c *Config) TokenPath() string { return filepath.Join(c.StateDir, auth.TokenFile) }
func (c *Config) DBPath() string    { return filepath.Join(c.StateDir, dbFile) }
func (c *Config) LockPath() string  { return filepath.Join(c.StateDir, lockFile) }

func (c *Config) configDir() string {
	if c.Path != "" {
		return filepath.Dir(c.Path)
	}
	if dir, err := GetConfigDir(); err == nil {
		return dir
	}
	return "."
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
