// ABOUTME: Core request/result types for the memory engine contract
// ABOUTME: Defines messages, add requests, and the grouped result shapes for reads and search

package memory

import (
	"errors"

	"github.com/2389/memos-gateway/internal/store"
)

// ErrTextualMemoryDisabled is returned when a memory operation is attempted
// while textual memory is toggled off on the running instance
var ErrTextualMemoryDisabled = errors.New("textual memory is disabled")

// ErrCubeNotRegistered is returned when an operation names a cube that is not
// registered or not accessible to the requesting user
var ErrCubeNotRegistered = errors.New("cube not registered")

// ErrNoResponse is returned when the chat model produced no reply at all.
// A reply that happens to be the empty string is not this error.
var ErrNoResponse = errors.New("model returned no response")

// Message is a single conversational turn reduced to its plain role/content
// fields. Richer transport-level structure is stripped before dispatch.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AddRequest carries one memory-ingestion input. Exactly one of Messages,
// MemoryContent, or DocPath is expected; the gateway enforces presence and
// precedence before dispatch.
type AddRequest struct {
	Messages      []Message
	MemoryContent string
	DocPath       string
	CubeID        string // empty resolves to the user's default cube
	UserID        string // empty resolves to the engine's current default user
}

// CubeMemoryGroup holds the memories of one cube in a read result
type CubeMemoryGroup struct {
	CubeID   string          `json:"cube_id"`
	Memories []*store.Memory `json:"memories"`
}

// GetAllResult mirrors the engine's parallel memory sections: textual
// memories always, activation memories only when that subsystem is enabled
// (empty otherwise).
type GetAllResult struct {
	TextMem []CubeMemoryGroup `json:"text_mem"`
	ActMem  []CubeMemoryGroup `json:"act_mem"`
}

// ScoredMemory is a memory with its search relevance score
type ScoredMemory struct {
	*store.Memory
	Score float64 `json:"score"`
}

// CubeSearchGroup holds the scored hits of one cube in a search result
type CubeSearchGroup struct {
	CubeID   string         `json:"cube_id"`
	Memories []ScoredMemory `json:"memories"`
}

// SearchResult groups search hits by cube, ranked by the engine
type SearchResult struct {
	TextMem []CubeSearchGroup `json:"text_mem"`
	ActMem  []CubeSearchGroup `json:"act_mem"`
}

// CubeInfo describes one cube accessible to a user
type CubeInfo struct {
	CubeID   string `json:"cube_id"`
	CubeName string `json:"cube_name"`
	OwnerID  string `json:"owner_id"`
	IsOwned  bool   `json:"is_owned"`
}

// UserInfo describes the engine's current default user and their cubes
type UserInfo struct {
	UserID          string     `json:"user_id"`
	UserName        string     `json:"user_name"`
	Role            string     `json:"role"`
	AccessibleCubes []CubeInfo `json:"accessible_cubes"`
}
