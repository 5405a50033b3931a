package config

import "fmt"

// LLMConfig configures the chat completion backend. Any OpenAI-compatible
// server works; point base_url at it.
//
// Example YAML:
//
//	llm:
//	  base_url: https://api.openai.com/v1
//	  api_key: ${OPENAI_API_KEY}
//	  model: gpt-4o-mini
//	  temperature: 0.3
type LLMConfig struct {
	// BaseURL is the API root, without the trailing endpoint path.
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey authenticates requests; optional for local servers.
	APIKey string `yaml:"api_key,omitempty"`

	// Model is the model identifier sent with each request.
	Model string `yaml:"model,omitempty"`

	// MaxTokens caps the completion length (default 2048).
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Temperature controls sampling (default 0.3).
	Temperature float64 `yaml:"temperature,omitempty"`

	// Timeout is the request timeout in seconds (default 60).
	Timeout int `yaml:"timeout,omitempty"`
}

func (c *LLMConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
}

func (c *LLMConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be positive, got %d", c.Timeout)
	}
	return nil
}

// EmbedderConfig configures the embedding backend.
type EmbedderConfig struct {
	// BaseURL is the API root, without the trailing endpoint path.
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey authenticates requests; optional for local servers.
	APIKey string `yaml:"api_key,omitempty"`

	// Model is the embedding model identifier.
	Model string `yaml:"model,omitempty"`

	// Dimension is the embedding vector size (default 1536).
	Dimension int `yaml:"dimension,omitempty"`

	// Timeout is the request timeout in seconds (default 30).
	Timeout int `yaml:"timeout,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
}

func (c *EmbedderConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Dimension < 1 {
		return fmt.Errorf("dimension must be positive, got %d", c.Dimension)
	}
	return nil
}
