// Package config defines the configuration surface of the lattice engine.
// Every section follows the same shape: a struct with YAML tags, a
// SetDefaults method applying defaults to zero fields, and a Validate
// method run after defaulting.
package config

import "fmt"

// Config is the root configuration.
//
// Example YAML:
//
//	logging:
//	  level: info
//	llm:
//	  base_url: https://api.openai.com/v1
//	  api_key: ${OPENAI_API_KEY}
//	  model: gpt-4o-mini
//	vector_store:
//	  type: chromem
//	  persist_path: .lattice/vectors
//	database:
//	  driver: sqlite
//	  dsn: .lattice/lattice.db
//	query:
//	  context:
//	    max_tokens: 4000
type Config struct {
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Metrics     MetricsConfig     `yaml:"metrics,omitempty"`
	LLM         LLMConfig         `yaml:"llm,omitempty"`
	Embedder    EmbedderConfig    `yaml:"embedder,omitempty"`
	VectorStore VectorStoreConfig `yaml:"vector_store,omitempty"`
	Database    DatabaseConfig    `yaml:"database,omitempty"`
	Cache       CacheConfig       `yaml:"cache,omitempty"`
	Retry       RetryConfig       `yaml:"retry,omitempty"`
	Query       QueryConfig       `yaml:"query,omitempty"`
	Description DescriptionConfig `yaml:"description,omitempty"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Metrics.SetDefaults()
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.VectorStore.SetDefaults()
	c.Database.SetDefaults()
	c.Cache.SetDefaults()
	c.Retry.SetDefaults()
	c.Query.SetDefaults()
	c.Description.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vector_store: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Query.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if err := c.Description.Validate(); err != nil {
		return fmt.Errorf("description: %w", err)
	}
	return nil
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `yaml:"level,omitempty"`

	// Format is "text" or "json".
	Format string `yaml:"format,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid level %q (valid: debug, info, warn, error)", c.Level)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q (valid: text, json)", c.Format)
	}
	return nil
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Addr is the listen address of the metrics endpoint.
	Addr string `yaml:"addr,omitempty"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":9464"
	}
}

func (c *MetricsConfig) Validate() error {
	return nil
}

// BoolPtr returns a pointer to b; used for optional booleans whose default
// is true.
func BoolPtr(b bool) *bool {
	return &b
}
