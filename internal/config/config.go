// Package config loads settings for the graph server, coordinator and
// client.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// environment variables. Command-line flags are applied last by each
// binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/graphps/internal/storage"
)

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// ServerConfig configures a graph server.
type ServerConfig struct {
	ID          string `yaml:"id"`
	Listen      string `yaml:"listen"`
	Addr        string `yaml:"addr"`        // Public address peers and clients use
	Coordinator string `yaml:"coordinator"` // Coordinator URL; empty uses Servers
	Servers     string `yaml:"servers"`     // Static "host:port;host:port" list
	Rank        int    `yaml:"rank"`        // Position in Servers when static

	// ExpectedServers is the cluster size a coordinator-managed server
	// waits for before assigning shard ranges.
	ExpectedServers int `yaml:"expected_servers"`

	Tables         []uint32 `yaml:"tables"`
	ShardNum       int      `yaml:"shard_num"`
	BucketLowBound int      `yaml:"bucket_low_bound"`
	PoolSize       int      `yaml:"pool_size"`
	Seed           uint64   `yaml:"seed"`
	TrainerCount   int      `yaml:"trainer_count"`
	ProfileDir     string   `yaml:"profile_dir"`

	Log LogConfig        `yaml:"log"`
	S3  storage.S3Config `yaml:"s3"`
}

// CoordinatorConfig configures the membership coordinator.
type CoordinatorConfig struct {
	Listen         string        `yaml:"listen"`
	ShardNum       int           `yaml:"shard_num"`
	HealthInterval time.Duration `yaml:"health_interval"`
	HealthTimeout  time.Duration `yaml:"health_timeout"`
	Log            LogConfig     `yaml:"log"`

	// MaxServers rejects registrations beyond this many servers. Zero
	// accepts any number.
	MaxServers int `yaml:"max_servers"`
}

// ClientConfig configures graphctl and other clients.
type ClientConfig struct {
	Coordinator string        `yaml:"coordinator"`
	Servers     string        `yaml:"servers"`
	ShardNum    int           `yaml:"shard_num"`
	ClientID    uint32        `yaml:"client_id"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"rate_limit"` // Requests per second; 0 is unlimited
	Log         LogConfig     `yaml:"log"`
}

// DefaultServer returns the server defaults.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Listen:         ":8081",
		Addr:           "http://127.0.0.1:8081",
		Tables:         []uint32{0},
		ShardNum:       127,
		BucketLowBound: 11,
		PoolSize:       11,
		TrainerCount:   1,
		Log:            LogConfig{Level: "info", Format: "text"},

		ExpectedServers: 1,
	}
}

// DefaultCoordinator returns the coordinator defaults.
func DefaultCoordinator() CoordinatorConfig {
	return CoordinatorConfig{
		Listen:         ":8080",
		ShardNum:       127,
		HealthInterval: 5 * time.Second,
		HealthTimeout:  2 * time.Second,
		Log:            LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultClient returns the client defaults.
func DefaultClient() ClientConfig {
	return ClientConfig{
		ShardNum: 127,
		Timeout:  60 * time.Second,
		Log:      LogConfig{Level: "warn", Format: "text"},
	}
}

// Getenv looks up an environment variable. os.Getenv in production.
type Getenv func(string) string

// LoadServer builds a server config from defaults, the file at path (if
// non-empty) and the environment.
func LoadServer(path string, env Getenv) (ServerConfig, error) {
	cfg := DefaultServer()
	if err := readFile(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(env); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadCoordinator builds a coordinator config.
func LoadCoordinator(path string, env Getenv) (CoordinatorConfig, error) {
	cfg := DefaultCoordinator()
	if err := readFile(path, &cfg); err != nil {
		return cfg, err
	}
	e := envReader{get: orOS(env)}
	e.str("COORDINATOR_LISTEN", &cfg.Listen)
	e.int("GRAPH_SHARD_NUM", &cfg.ShardNum)
	e.duration("COORDINATOR_HEALTH_INTERVAL", &cfg.HealthInterval)
	e.duration("COORDINATOR_HEALTH_TIMEOUT", &cfg.HealthTimeout)
	e.int("COORDINATOR_MAX_SERVERS", &cfg.MaxServers)
	e.str("GRAPH_LOG_LEVEL", &cfg.Log.Level)
	e.str("GRAPH_LOG_FORMAT", &cfg.Log.Format)
	return cfg, e.err
}

// LoadClient builds a client config.
func LoadClient(path string, env Getenv) (ClientConfig, error) {
	cfg := DefaultClient()
	if err := readFile(path, &cfg); err != nil {
		return cfg, err
	}
	e := envReader{get: orOS(env)}
	e.str("COORDINATOR_ADDR", &cfg.Coordinator)
	e.str("GRAPH_SERVERS", &cfg.Servers)
	e.int("GRAPH_SHARD_NUM", &cfg.ShardNum)
	e.duration("GRAPH_CLIENT_TIMEOUT", &cfg.Timeout)
	e.str("GRAPH_LOG_LEVEL", &cfg.Log.Level)
	if v := e.get("GRAPH_CLIENT_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("GRAPH_CLIENT_ID: %w", err)
		}
		cfg.ClientID = uint32(id)
	}
	return cfg, e.err
}

func (c *ServerConfig) applyEnv(env Getenv) error {
	e := envReader{get: orOS(env)}
	e.str("GRAPH_ID", &c.ID)
	e.str("GRAPH_LISTEN", &c.Listen)
	e.str("GRAPH_ADDR", &c.Addr)
	e.str("COORDINATOR_ADDR", &c.Coordinator)
	e.str("GRAPH_SERVERS", &c.Servers)
	e.int("GRAPH_RANK", &c.Rank)
	e.int("GRAPH_EXPECTED_SERVERS", &c.ExpectedServers)
	e.int("GRAPH_SHARD_NUM", &c.ShardNum)
	e.int("GRAPH_TRAINERS", &c.TrainerCount)
	e.str("GRAPH_PROFILE_DIR", &c.ProfileDir)
	e.str("GRAPH_LOG_LEVEL", &c.Log.Level)
	e.str("GRAPH_LOG_FORMAT", &c.Log.Format)
	e.str("GRAPH_S3_ENDPOINT", &c.S3.Endpoint)
	e.str("GRAPH_S3_ACCESS_KEY", &c.S3.AccessKey)
	e.str("GRAPH_S3_SECRET_KEY", &c.S3.SecretKey)
	if v := e.get("GRAPH_TABLES"); v != "" {
		tables, err := ParseTables(v)
		if err != nil {
			return fmt.Errorf("GRAPH_TABLES: %w", err)
		}
		c.Tables = tables
	}
	return e.err
}

// Validate checks a server config for settings that cannot work.
func (c *ServerConfig) Validate() error {
	var errs []error
	if c.ShardNum <= 0 {
		errs = append(errs, fmt.Errorf("shard_num must be positive, got %d", c.ShardNum))
	}
	if len(c.Tables) == 0 {
		errs = append(errs, errors.New("at least one table is required"))
	}
	if c.Coordinator == "" && c.Servers == "" {
		errs = append(errs, errors.New("either coordinator or servers must be set"))
	}
	if c.Coordinator != "" && c.ExpectedServers <= 0 {
		errs = append(errs, fmt.Errorf("expected_servers must be positive, got %d", c.ExpectedServers))
	}
	if c.Coordinator == "" && c.Rank < 0 {
		errs = append(errs, fmt.Errorf("rank must not be negative, got %d", c.Rank))
	}
	seen := make(map[uint32]bool, len(c.Tables))
	for _, id := range c.Tables {
		if seen[id] {
			errs = append(errs, fmt.Errorf("duplicate table %d", id))
		}
		seen[id] = true
	}
	return errors.Join(errs...)
}

// ParseTables parses a comma separated list of table ids.
func ParseTables(s string) ([]uint32, error) {
	var out []uint32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid table id %q", part)
		}
		out = append(out, uint32(id))
	}
	return out, nil
}

func readFile(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func orOS(env Getenv) Getenv {
	if env == nil {
		return os.Getenv
	}
	return env
}

// envReader applies set variables and keeps the first parse error.
type envReader struct {
	get Getenv
	err error
}

func (e *envReader) str(key string, dst *string) {
	if v := e.get(key); v != "" {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v := e.get(key)
	if v == "" || e.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v := e.get(key)
	if v == "" || e.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = d
}
