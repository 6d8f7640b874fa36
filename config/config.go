// Package config loads ctxgraph settings from a YAML file and the
// environment.
//
// Every key can be overridden by an environment variable with the CTXGRAPH_
// prefix, dots replaced by underscores: link.top_k becomes CTXGRAPH_LINK_TOP_K.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/contextgraph/link"
	"github.com/zero-day-ai/contextgraph/queue"
	"github.com/zero-day-ai/contextgraph/sink"
)

// FileName is the config file looked up by Find.
const FileName = "ctxgraph.yaml"

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "CTXGRAPH"

// Config is the full ctxgraph configuration.
type Config struct {
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
	Builder   BuilderConfig    `yaml:"builder" mapstructure:"builder"`
	Link      link.Config      `yaml:"link" mapstructure:"link"`
	Traversal TraversalConfig  `yaml:"traversal" mapstructure:"traversal"`
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Neo4j     sink.Neo4jConfig `yaml:"neo4j" mapstructure:"neo4j"`
	Redis     RedisConfig      `yaml:"redis" mapstructure:"redis"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" mapstructure:"level"`

	// Format is text or json.
	Format string `yaml:"format" mapstructure:"format"`
}

// BuilderConfig controls graph building.
type BuilderConfig struct {
	// SourceIDs keeps trajectory entity and relation ids as graph ids.
	SourceIDs bool `yaml:"source_ids" mapstructure:"source_ids"`

	// Link runs the link generator over new entities.
	Link bool `yaml:"link" mapstructure:"link"`
}

// TraversalConfig holds subgraph defaults.
type TraversalConfig struct {
	MaxHops   int      `yaml:"max_hops" mapstructure:"max_hops"`
	EdgeTypes []string `yaml:"edge_types,omitempty" mapstructure:"edge_types"`

	// ValidOnly skips invalidated edges.
	ValidOnly bool `yaml:"valid_only" mapstructure:"valid_only"`
}

// StoreConfig locates persisted graphs.
type StoreConfig struct {
	// Snapshots is the SQLite database holding named snapshots.
	Snapshots string `yaml:"snapshots" mapstructure:"snapshots"`

	// Format is the default document format: json or yaml.
	Format string `yaml:"format" mapstructure:"format"`
}

// RedisConfig locates the Redis queues.
type RedisConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	DocumentQueue  string `yaml:"document_queue" mapstructure:"document_queue"`
	NoteQueue      string `yaml:"note_queue" mapstructure:"note_queue"`
	EventChannel   string `yaml:"event_channel" mapstructure:"event_channel"`
	ConnectTimeout string `yaml:"connect_timeout,omitempty" mapstructure:"connect_timeout"`
}

// GetConnectTimeout parses the connect timeout. Returns 5s if unset or
// invalid.
func (r RedisConfig) GetConnectTimeout() time.Duration {
	if r.ConnectTimeout == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(r.ConnectTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:       LogConfig{Level: "warn", Format: "text"},
		Builder:   BuilderConfig{Link: true},
		Link:      link.DefaultConfig(),
		Traversal: TraversalConfig{MaxHops: 2},
		Store:     StoreConfig{Snapshots: "ctxgraph.db", Format: "json"},
		Neo4j:     sink.Neo4jConfig{URI: "neo4j://localhost:7687", Username: "neo4j"},
		Redis: RedisConfig{
			URL:           "redis://localhost:6379",
			DocumentQueue: queue.DefaultDocumentQueue,
			NoteQueue:     queue.DefaultNoteQueue,
			EventChannel:  queue.DefaultEventChannel,
		},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("builder.source_ids", cfg.Builder.SourceIDs)
	v.SetDefault("builder.link", cfg.Builder.Link)
	v.SetDefault("link.top_k", cfg.Link.TopK)
	v.SetDefault("link.min_name_length", cfg.Link.MinNameLength)
	v.SetDefault("link.file_weight", cfg.Link.FileWeight)
	v.SetDefault("link.name_weight", cfg.Link.NameWeight)
	v.SetDefault("link.co_occurrence_weight", cfg.Link.CoOccurrenceWeight)
	v.SetDefault("link.evolve", cfg.Link.Evolve)
	v.SetDefault("traversal.max_hops", cfg.Traversal.MaxHops)
	v.SetDefault("traversal.edge_types", cfg.Traversal.EdgeTypes)
	v.SetDefault("traversal.valid_only", cfg.Traversal.ValidOnly)
	v.SetDefault("store.snapshots", cfg.Store.Snapshots)
	v.SetDefault("store.format", cfg.Store.Format)
	v.SetDefault("neo4j.uri", cfg.Neo4j.URI)
	v.SetDefault("neo4j.username", cfg.Neo4j.Username)
	v.SetDefault("neo4j.password", cfg.Neo4j.Password)
	v.SetDefault("neo4j.database", cfg.Neo4j.Database)
	v.SetDefault("redis.url", cfg.Redis.URL)
	v.SetDefault("redis.document_queue", cfg.Redis.DocumentQueue)
	v.SetDefault("redis.note_queue", cfg.Redis.NoteQueue)
	v.SetDefault("redis.event_channel", cfg.Redis.EventChannel)
	v.SetDefault("redis.connect_timeout", cfg.Redis.ConnectTimeout)
}

// Load reads the configuration at path, applies environment overrides and
// validates the result. An empty path skips the file and uses defaults plus
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Find looks for ctxgraph.yaml in dir and its parents. It returns "" when
// none exists.
func Find(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	for {
		candidate := filepath.Join(absDir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(absDir)
		if parent == absDir {
			return "", nil
		}
		absDir = parent
	}
}

// Write stores cfg as YAML at path. It refuses to overwrite an existing file
// unless force is set.
func Write(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if err := c.Link.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("link: %w", err))
	}
	if c.Traversal.MaxHops < 0 {
		errs = append(errs, fmt.Errorf("traversal.max_hops must be >= 0, got %d", c.Traversal.MaxHops))
	}
	switch c.Store.Format {
	case "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("store.format must be json or yaml, got %q", c.Store.Format))
	}
	if c.Redis.ConnectTimeout != "" {
		if _, err := time.ParseDuration(c.Redis.ConnectTimeout); err != nil {
			errs = append(errs, fmt.Errorf("redis.connect_timeout: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// NewLogger builds a logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
