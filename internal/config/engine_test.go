// ABOUTME: Tests for engine configuration resolution
// ABOUTME: Covers baseline fallbacks, override merging, purity, and validation

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseline_Fallbacks(t *testing.T) {
	// Make sure no ambient env leaks into the baseline
	for _, key := range []string{
		"MOS_USER_ID", "MOS_SESSION_ID", "MOS_TOP_K",
		"MOS_CHAT_MODEL_PROVIDER", "MOS_CHAT_MODEL", "MOS_CHAT_TEMPERATURE",
		"OPENAI_API_KEY", "OPENAI_API_BASE",
		"MOS_CHUNK_SIZE", "MOS_CHUNK_OVERLAP",
	} {
		t.Setenv(key, "")
	}

	cfg := Baseline()

	assert.Equal(t, "default_user", cfg.UserID)
	assert.Equal(t, "default_session", cfg.SessionID)
	assert.Equal(t, 5, cfg.TopK)
	assert.True(t, cfg.EnableTextualMemory)
	assert.False(t, cfg.EnableActivationMemory)
	assert.Equal(t, ProviderOpenAI, cfg.ChatModel.Provider)
	assert.Equal(t, "gpt-3.5-turbo", cfg.ChatModel.Model)
	assert.InDelta(t, 0.7, cfg.ChatModel.Temperature, 1e-9)
	assert.Equal(t, "https://api.openai.com/v1", cfg.ChatModel.BaseURL)
	assert.Equal(t, "text-embedding-ada-002", cfg.MemReader.Embedder.Model)
	assert.Equal(t, 512, cfg.MemReader.Chunker.ChunkSize)
	assert.Equal(t, 128, cfg.MemReader.Chunker.ChunkOverlap)
}

func TestBaseline_ReadsEnvironment(t *testing.T) {
	t.Setenv("MOS_USER_ID", "alice")
	t.Setenv("MOS_TOP_K", "12")
	t.Setenv("MOS_CHAT_TEMPERATURE", "0.2")

	cfg := Baseline()

	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, 12, cfg.TopK)
	assert.InDelta(t, 0.2, cfg.ChatModel.Temperature, 1e-9)
}

func TestResolve_EmptyOverridesYieldsBaseline(t *testing.T) {
	cfg, err := Resolve(EngineOverrides{})
	require.NoError(t, err)
	assert.Equal(t, Baseline(), cfg)
}

func TestResolve_OverlaysOnlyPresentFields(t *testing.T) {
	userID := "bob"
	topK := 9
	temp := 0.1
	chunkSize := 256

	cfg, err := Resolve(EngineOverrides{
		UserID: &userID,
		TopK:   &topK,
		ChatModel: &LLMOverrides{
			Temperature: &temp,
		},
		MemReader: &MemReaderOverrides{
			Chunker: &ChunkerOverrides{ChunkSize: &chunkSize},
		},
	})
	require.NoError(t, err)

	base := Baseline()
	assert.Equal(t, "bob", cfg.UserID)
	assert.Equal(t, 9, cfg.TopK)
	assert.InDelta(t, 0.1, cfg.ChatModel.Temperature, 1e-9)
	assert.Equal(t, 256, cfg.MemReader.Chunker.ChunkSize)

	// Untouched fields keep baseline values
	assert.Equal(t, base.SessionID, cfg.SessionID)
	assert.Equal(t, base.ChatModel.Model, cfg.ChatModel.Model)
	assert.Equal(t, base.MemReader.Chunker.ChunkOverlap, cfg.MemReader.Chunker.ChunkOverlap)
}

func TestResolve_DoesNotMutateBaseline(t *testing.T) {
	before := Baseline()

	userID := "carol"
	_, err := Resolve(EngineOverrides{UserID: &userID})
	require.NoError(t, err)

	assert.Equal(t, before, Baseline())
}

func TestResolve_InvalidValues(t *testing.T) {
	tests := []struct {
		name      string
		overrides EngineOverrides
	}{
		{
			name:      "top_k below one",
			overrides: EngineOverrides{TopK: intPtr(0)},
		},
		{
			name:      "empty user id",
			overrides: EngineOverrides{UserID: strPtr("")},
		},
		{
			name: "temperature out of range",
			overrides: EngineOverrides{
				ChatModel: &LLMOverrides{Temperature: floatPtr(3.5)},
			},
		},
		{
			name: "overlap not below chunk size",
			overrides: EngineOverrides{
				MemReader: &MemReaderOverrides{
					Chunker: &ChunkerOverrides{ChunkSize: intPtr(100), ChunkOverlap: intPtr(100)},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.overrides)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func intPtr(n int) *int           { return &n }
func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
