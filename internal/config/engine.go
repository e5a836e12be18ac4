// ABOUTME: Engine configuration model with env-derived baseline and override merging
// ABOUTME: Resolve overlays only explicitly set fields onto the baseline and validates the result

package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when a resolved engine configuration fails validation
var ErrInvalidConfig = errors.New("invalid engine configuration")

// Providers understood by the engine's model clients
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// LLMConfig holds settings for a chat-capable language model client
type LLMConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	APIKey      string  `json:"-"`
	Temperature float64 `json:"temperature"`
	BaseURL     string  `json:"base_url"`
}

// EmbedderConfig holds settings for the embedding client
type EmbedderConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"-"`
	BaseURL  string `json:"base_url"`
}

// ChunkerConfig holds settings for document/content chunking
type ChunkerConfig struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

// MemReaderConfig groups the components used to turn raw inputs into memories
type MemReaderConfig struct {
	LLM      LLMConfig      `json:"llm"`
	Embedder EmbedderConfig `json:"embedder"`
	Chunker  ChunkerConfig  `json:"chunker"`
}

// EngineConfig is the fully-populated configuration an engine instance is
// constructed from. Once an instance exists the config is treated as frozen;
// the /configure endpoint mutates the running instance's fields directly
// instead of building a new one.
type EngineConfig struct {
	UserID                 string          `json:"user_id"`
	SessionID              string          `json:"session_id"`
	TopK                   int             `json:"top_k"`
	EnableTextualMemory    bool            `json:"enable_textual_memory"`
	EnableActivationMemory bool            `json:"enable_activation_memory"`
	ChatModel              LLMConfig       `json:"chat_model"`
	MemReader              MemReaderConfig `json:"mem_reader"`
}

// Baseline builds the default engine configuration from the process
// environment. Every field has a documented fallback literal so the result is
// always fully populated.
func Baseline() EngineConfig {
	apiKey := envString("OPENAI_API_KEY", "apikey")
	apiBase := envString("OPENAI_API_BASE", "https://api.openai.com/v1")

	return EngineConfig{
		UserID:                 envString("MOS_USER_ID", "default_user"),
		SessionID:              envString("MOS_SESSION_ID", "default_session"),
		TopK:                   envInt("MOS_TOP_K", 5),
		EnableTextualMemory:    true,
		EnableActivationMemory: false,
		ChatModel: LLMConfig{
			Provider:    envString("MOS_CHAT_MODEL_PROVIDER", ProviderOpenAI),
			Model:       envString("MOS_CHAT_MODEL", "gpt-3.5-turbo"),
			APIKey:      apiKey,
			Temperature: envFloat("MOS_CHAT_TEMPERATURE", 0.7),
			BaseURL:     apiBase,
		},
		MemReader: MemReaderConfig{
			LLM: LLMConfig{
				Provider:    envString("MOS_MEM_READER_LLM_PROVIDER", ProviderOpenAI),
				Model:       envString("MOS_MEM_READER_MODEL", "gpt-3.5-turbo"),
				APIKey:      apiKey,
				Temperature: envFloat("MOS_MEM_READER_TEMPERATURE", 0.7),
				BaseURL:     apiBase,
			},
			Embedder: EmbedderConfig{
				Provider: envString("MOS_EMBEDDER_PROVIDER", ProviderOpenAI),
				Model:    envString("MOS_EMBEDDER_MODEL", "text-embedding-ada-002"),
				APIKey:   apiKey,
				BaseURL:  apiBase,
			},
			Chunker: ChunkerConfig{
				ChunkSize:    envInt("MOS_CHUNK_SIZE", 512),
				ChunkOverlap: envInt("MOS_CHUNK_OVERLAP", 128),
			},
		},
	}
}

// LLMOverrides carries optional replacements for LLMConfig fields
type LLMOverrides struct {
	Provider    *string  `json:"provider,omitempty"`
	Model       *string  `json:"model,omitempty"`
	APIKey      *string  `json:"api_key,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	BaseURL     *string  `json:"base_url,omitempty"`
}

// EmbedderOverrides carries optional replacements for EmbedderConfig fields
type EmbedderOverrides struct {
	Provider *string `json:"provider,omitempty"`
	Model    *string `json:"model,omitempty"`
	APIKey   *string `json:"api_key,omitempty"`
	BaseURL  *string `json:"base_url,omitempty"`
}

// ChunkerOverrides carries optional replacements for ChunkerConfig fields
type ChunkerOverrides struct {
	ChunkSize    *int `json:"chunk_size,omitempty"`
	ChunkOverlap *int `json:"chunk_overlap,omitempty"`
}

// MemReaderOverrides carries optional replacements for MemReaderConfig fields
type MemReaderOverrides struct {
	LLM      *LLMOverrides      `json:"llm,omitempty"`
	Embedder *EmbedderOverrides `json:"embedder,omitempty"`
	Chunker  *ChunkerOverrides  `json:"chunker,omitempty"`
}

// EngineOverrides is a partial engine configuration. Nil fields keep the
// baseline value; non-nil fields replace it.
type EngineOverrides struct {
	UserID                 *string             `json:"user_id,omitempty"`
	SessionID              *string             `json:"session_id,omitempty"`
	TopK                   *int                `json:"top_k,omitempty"`
	EnableTextualMemory    *bool               `json:"enable_textual_memory,omitempty"`
	EnableActivationMemory *bool               `json:"enable_activation_memory,omitempty"`
	ChatModel              *LLMOverrides       `json:"chat_model,omitempty"`
	MemReader              *MemReaderOverrides `json:"mem_reader,omitempty"`
}

// Resolve builds a complete engine configuration by overlaying the given
// overrides onto the environment baseline. The baseline is never mutated and
// an empty override set yields exactly the baseline. The result is validated
// before being returned.
func Resolve(o EngineOverrides) (EngineConfig, error) {
	return Overlay(Baseline(), o)
}

// Overlay applies the given overrides onto cfg and validates the result.
// cfg itself is not mutated; an empty override set yields exactly cfg.
func Overlay(cfg EngineConfig, o EngineOverrides) (EngineConfig, error) {
	if o.UserID != nil {
		cfg.UserID = *o.UserID
	}
	if o.SessionID != nil {
		cfg.SessionID = *o.SessionID
	}
	if o.TopK != nil {
		cfg.TopK = *o.TopK
	}
	if o.EnableTextualMemory != nil {
		cfg.EnableTextualMemory = *o.EnableTextualMemory
	}
	if o.EnableActivationMemory != nil {
		cfg.EnableActivationMemory = *o.EnableActivationMemory
	}
	if o.ChatModel != nil {
		applyLLMOverrides(&cfg.ChatModel, o.ChatModel)
	}
	if o.MemReader != nil {
		if o.MemReader.LLM != nil {
			applyLLMOverrides(&cfg.MemReader.LLM, o.MemReader.LLM)
		}
		if o.MemReader.Embedder != nil {
			e := o.MemReader.Embedder
			if e.Provider != nil {
				cfg.MemReader.Embedder.Provider = *e.Provider
			}
			if e.Model != nil {
				cfg.MemReader.Embedder.Model = *e.Model
			}
			if e.APIKey != nil {
				cfg.MemReader.Embedder.APIKey = *e.APIKey
			}
			if e.BaseURL != nil {
				cfg.MemReader.Embedder.BaseURL = *e.BaseURL
			}
		}
		if o.MemReader.Chunker != nil {
			c := o.MemReader.Chunker
			if c.ChunkSize != nil {
				cfg.MemReader.Chunker.ChunkSize = *c.ChunkSize
			}
			if c.ChunkOverlap != nil {
				cfg.MemReader.Chunker.ChunkOverlap = *c.ChunkOverlap
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}

	return cfg, nil
}

func applyLLMOverrides(dst *LLMConfig, o *LLMOverrides) {
	if o.Provider != nil {
		dst.Provider = *o.Provider
	}
	if o.Model != nil {
		dst.Model = *o.Model
	}
	if o.APIKey != nil {
		dst.APIKey = *o.APIKey
	}
	if o.Temperature != nil {
		dst.Temperature = *o.Temperature
	}
	if o.BaseURL != nil {
		dst.BaseURL = *o.BaseURL
	}
}

// Validate checks that the engine configuration is internally consistent.
// All failures wrap ErrInvalidConfig so callers can classify them.
func (c EngineConfig) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("%w: user_id must not be empty", ErrInvalidConfig)
	}
	if c.SessionID == "" {
		return fmt.Errorf("%w: session_id must not be empty", ErrInvalidConfig)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1, got %d", ErrInvalidConfig, c.TopK)
	}
	if err := validateLLM("chat_model", c.ChatModel); err != nil {
		return err
	}
	if err := validateLLM("mem_reader.llm", c.MemReader.LLM); err != nil {
		return err
	}
	if c.MemReader.Embedder.Provider == "" {
		return fmt.Errorf("%w: mem_reader.embedder.provider must not be empty", ErrInvalidConfig)
	}
	if c.MemReader.Embedder.Model == "" {
		return fmt.Errorf("%w: mem_reader.embedder.model must not be empty", ErrInvalidConfig)
	}
	if c.MemReader.Chunker.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be at least 1, got %d", ErrInvalidConfig, c.MemReader.Chunker.ChunkSize)
	}
	if c.MemReader.Chunker.ChunkOverlap < 0 || c.MemReader.Chunker.ChunkOverlap >= c.MemReader.Chunker.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d", ErrInvalidConfig, c.MemReader.Chunker.ChunkOverlap)
	}
	return nil
}

func validateLLM(field string, l LLMConfig) error {
	if l.Provider == "" {
		return fmt.Errorf("%w: %s.provider must not be empty", ErrInvalidConfig, field)
	}
	if l.Model == "" {
		return fmt.Errorf("%w: %s.model must not be empty", ErrInvalidConfig, field)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("%w: %s.temperature must be in [0, 2], got %v", ErrInvalidConfig, field, l.Temperature)
	}
	return nil
}
