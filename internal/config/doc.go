// Package config handles configuration for memos-gateway.
//
// # Overview
//
// Two configuration surfaces live here:
//
//  1. The server process config (listen address, database path, logging),
//     loaded from a YAML file with ${VAR_NAME} environment expansion.
//  2. The engine config (EngineConfig), resolved from an environment-derived
//     baseline plus an optional set of explicit overrides.
//
// # Engine Baseline
//
// Baseline() reads the MOS_* environment variables and falls back to fixed
// literals for anything unset, so the result is always fully populated:
//
//	MOS_USER_ID                  default_user
//	MOS_SESSION_ID               default_session
//	MOS_TOP_K                    5
//	MOS_CHAT_MODEL_PROVIDER      openai
//	MOS_CHAT_MODEL               gpt-3.5-turbo
//	MOS_CHAT_TEMPERATURE         0.7
//	MOS_MEM_READER_LLM_PROVIDER  openai
//	MOS_MEM_READER_MODEL         gpt-3.5-turbo
//	MOS_MEM_READER_TEMPERATURE   0.7
//	MOS_EMBEDDER_PROVIDER        openai
//	MOS_EMBEDDER_MODEL           text-embedding-ada-002
//	MOS_CHUNK_SIZE               512
//	MOS_CHUNK_OVERLAP            128
//	OPENAI_API_KEY               apikey
//	OPENAI_API_BASE              https://api.openai.com/v1
//
// # Overrides
//
// Resolve(overrides) overlays only the fields explicitly present in the
// override set (pointer fields); unset fields keep their baseline values.
// Resolve never mutates the baseline and validates the merged result,
// wrapping every failure in ErrInvalidConfig.
package config
