// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package circulate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/circulate/storage"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Config selects and configures a storage backend and the outer surfaces.
type Config struct {
	// Backend is one of memory, badger, redis, sqlite or mongo.
	// Default: memory
	Backend string `yaml:"backend"`

	// Path is the badger directory or the sqlite database file.
	Path string `yaml:"path"`

	// InMemory runs badger without touching disk. Path is ignored.
	InMemory bool `yaml:"in_memory"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	// RedisPrefix namespaces every key the redis backend writes.
	// Default: "circulate:"
	RedisPrefix string `yaml:"redis_prefix"`

	// MongoURI must point at a replica set; the backend uses transactions.
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`

	// RetryAttempts bounds how often a conflicting transaction is replayed.
	// Default: 20
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryDelay is the first backoff between replays; later ones double.
	// Default: 1ms
	RetryDelay time.Duration `yaml:"retry_delay"`

	// ListenAddr is the HTTP listen address for serve.
	// Default: ":8080"
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is debug, info, warn or error.
	// Default: info
	LogLevel string `yaml:"log_level"`

	// ImportWorkers is the importer's worker pool size.
	// Default: 4
	ImportWorkers int `yaml:"import_workers"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBackend selects the storage backend.
func WithBackend(backend string) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithPath sets the badger directory or sqlite file.
func WithPath(path string) ConfigOption {
	return func(c *Config) {
		c.Path = path
	}
}

// WithInMemory runs badger in memory.
func WithInMemory(inMemory bool) ConfigOption {
	return func(c *Config) {
		c.InMemory = inMemory
	}
}

// WithRedis sets the redis server address, password and database.
func WithRedis(addr, password string, db int) ConfigOption {
	return func(c *Config) {
		c.RedisAddr = addr
		c.RedisPassword = password
		c.RedisDB = db
	}
}

// WithMongo sets the mongo connection URI and database.
func WithMongo(uri, database string) ConfigOption {
	return func(c *Config) {
		c.MongoURI = uri
		c.MongoDatabase = database
	}
}

// WithRetry sets the conflict retry budget.
func WithRetry(attempts int, delay time.Duration) ConfigOption {
	return func(c *Config) {
		c.RetryAttempts = attempts
		c.RetryDelay = delay
	}
}

// WithListenAddr sets the HTTP listen address.
func WithListenAddr(addr string) ConfigOption {
	return func(c *Config) {
		c.ListenAddr = addr
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) ConfigOption {
	return func(c *Config) {
		c.LogLevel = level
	}
}

// WithImportWorkers sets the importer's worker pool size.
func WithImportWorkers(n int) ConfigOption {
	return func(c *Config) {
		c.ImportWorkers = n
	}
}

// DefaultConfig returns a Config for an in-process memory store.
func DefaultConfig() *Config {
	return &Config{
		Backend:       BackendMemory,
		RedisAddr:     "localhost:6379",
		RedisPrefix:   "circulate:",
		MongoURI:      "mongodb://localhost:27017/?replicaSet=rs0",
		MongoDatabase: "circulate",
		RetryAttempts: 20,
		RetryDelay:    time.Millisecond,
		ListenAddr:    ":8080",
		LogLevel:      "info",
		ImportWorkers: 4,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithBackend(BackendSQLite),
//	    WithPath("/var/lib/circulate/catalog.db"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Validate checks that the configuration is complete for the selected backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.Path == "" && !c.InMemory {
			return errors.New("config: path is required for the badger backend")
		}
	case BackendSQLite:
		if c.Path == "" {
			return errors.New("config: path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: redis_addr is required for the redis backend")
		}
	case BackendMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return errors.New("config: mongo_uri and mongo_database are required for the mongo backend")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.RetryAttempts < 1 {
		return errors.New("config: retry_attempts must be at least 1")
	}
	if c.RetryDelay < 0 {
		return errors.New("config: retry_delay must not be negative")
	}
	if c.ImportWorkers < 1 {
		return errors.New("config: import_workers must be at least 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}

// LoadConfig builds a Config from defaults, the YAML file at path (skipped
// when path is empty), a .env file in the working directory if present, and
// CIRCULATE_* environment variables, in increasing precedence.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	text := map[string]*string{
		"CIRCULATE_BACKEND":        &c.Backend,
		"CIRCULATE_PATH":           &c.Path,
		"CIRCULATE_REDIS_ADDR":     &c.RedisAddr,
		"CIRCULATE_REDIS_PASSWORD": &c.RedisPassword,
		"CIRCULATE_REDIS_PREFIX":   &c.RedisPrefix,
		"CIRCULATE_MONGO_URI":      &c.MongoURI,
		"CIRCULATE_MONGO_DATABASE": &c.MongoDatabase,
		"CIRCULATE_LISTEN_ADDR":    &c.ListenAddr,
		"CIRCULATE_LOG_LEVEL":      &c.LogLevel,
	}
	for name, field := range text {
		if v, ok := os.LookupEnv(name); ok {
			*field = v
		}
	}

	ints := map[string]*int{
		"CIRCULATE_REDIS_DB":       &c.RedisDB,
		"CIRCULATE_RETRY_ATTEMPTS": &c.RetryAttempts,
		"CIRCULATE_IMPORT_WORKERS": &c.ImportWorkers,
	}
	for name, field := range ints {
		if v, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", name, err)
			}
			*field = n
		}
	}

	if v, ok := os.LookupEnv("CIRCULATE_RETRY_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: CIRCULATE_RETRY_DELAY: %w", err)
		}
		c.RetryDelay = d
	}
	if v, ok := os.LookupEnv("CIRCULATE_IN_MEMORY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: CIRCULATE_IN_MEMORY: %w", err)
		}
		c.InMemory = b
	}
	return nil
}

func (c *Config) retryPolicy() storage.RetryPolicy {
	return storage.RetryPolicy{MaxAttempts: c.RetryAttempts, BaseDelay: c.RetryDelay}
}
