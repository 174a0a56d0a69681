package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents runtime configuration for the server and the CLI client.
type Config struct {
	Server    ServerConfig              `json:"server"`
	Databases map[string]DatabaseConfig `json:"databases"`
	Redis     RedisConfig               `json:"redis"`
	AI        AIConfig                  `json:"ai"`
	Client    ClientConfig              `json:"client"`
	Log       LogConfig                 `json:"log"`
}

type ServerConfig struct {
	Address       string   `json:"address"`
	CORSOrigins   []string `json:"cors_origins"`
	TokenTTLHours int      `json:"token_ttl_hours"`
	MinWorkers    int      `json:"min_workers"`
	MaxWorkers    int      `json:"max_workers"`
	QueueSize     int      `json:"queue_size"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type AIConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// ClientConfig drives the CLI client: where the backend lives and where the
// persisted credentials file sits.
type ClientConfig struct {
	BaseURL        string `json:"base_url"`
	CredentialFile string `json:"credential_file"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// CacheTTL returns the redis cache TTL, defaulting to one hour.
func (r RedisConfig) CacheTTL() time.Duration {
	if r.TTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(r.TTLSeconds) * time.Second
}

// Timeout returns the client request timeout, defaulting to 30 seconds.
func (c ClientConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases["sqlite3"] = db
	}

	return &cfg, nil
}
