// Package config builds the process configuration by layering
// defaults, the config file, environment variables, and CLI
// flags, in that order of increasing precedence.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	DataDir      string        `json:"data_dir"`
	WriteTimeout time.Duration `json:"-"`

	// MongoURI is the connection string of the chat
	// application's datastore. Required for serve.
	MongoURI string `json:"-"`

	// MongoDBName overrides the database name embedded in the
	// URI. Optional.
	MongoDBName string `json:"mongo_db_name,omitempty"`

	// DashboardPassword protects the dashboard when set. The
	// hashed variant takes precedence; both empty disables auth.
	DashboardPassword     string `json:"-"`
	DashboardPasswordHash string `json:"-"`

	// SessionSecret signs session tokens. Generated and
	// persisted on first run when unset.
	SessionSecret string `json:"session_secret,omitempty"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	return Config{
		Host:         "127.0.0.1",
		Port:         8080,
		DataDir:      filepath.Join(home, ".chatlens"),
		WriteTimeout: 30 * time.Second,
	}, nil
}

// Load builds a Config by layering: defaults < config file < env < flags.
// The provided FlagSet must already be parsed by the caller.
// Only flags that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	cfg.loadEnv()
	applyFlags(&cfg, fs)
	if err := cfg.ensureSessionSecret(); err != nil {
		return cfg, fmt.Errorf("ensuring session secret: %w", err)
	}
	return cfg, nil
}

// Validate checks the invariants serve depends on.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

func (c *Config) loadFile() error {
	// The data dir env override must apply before the file read.
	if v := os.Getenv("CHATLENS_DATA_DIR"); v != "" {
		c.DataDir = v
	}

	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		Host          string `json:"host"`
		Port          int    `json:"port"`
		MongoDBName   string `json:"mongo_db_name"`
		SessionSecret string `json:"session_secret"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.MongoDBName != "" {
		c.MongoDBName = file.MongoDBName
	}
	if file.SessionSecret != "" {
		c.SessionSecret = file.SessionSecret
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("MONGODB_URI"); v != "" {
		c.MongoURI = v
	}
	if v := os.Getenv("MONGODB_DB_NAME"); v != "" {
		c.MongoDBName = v
	}
	if v := os.Getenv("CHATLENS_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("CHATLENS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("CHATLENS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DASHBOARD_PASSWORD"); v != "" {
		c.DashboardPassword = v
	}
	if v := os.Getenv("DASHBOARD_PASSWORD_HASH"); v != "" {
		c.DashboardPasswordHash = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.SessionSecret = v
	}
}

// ensureSessionSecret generates a signing secret on first run
// and persists it so sessions survive restarts.
func (c *Config) ensureSessionSecret() error {
	if c.SessionSecret != "" {
		return nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Errorf("generating secret: %w", err)
	}
	secret := base64.StdEncoding.EncodeToString(b)
	c.SessionSecret = secret

	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	existing := make(map[string]any)
	data, err := os.ReadFile(c.configPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("existing config invalid: %w", err)
		}
	}

	existing["session_secret"] = secret
	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(c.configPath(), out, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// AuthEnabled reports whether the dashboard requires a login.
func (c *Config) AuthEnabled() bool {
	return c.DashboardPassword != "" || c.DashboardPasswordHash != ""
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8080, "Port to listen on")
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(f.Value.String())
		}
	})
}
