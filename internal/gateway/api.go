// ABOUTME: HTTP API handlers for the memory endpoints
// ABOUTME: Decodes requests, dispatches to the engine, and normalizes responses and errors

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/memos-gateway/internal/config"
	"github.com/2389/memos-gateway/internal/memory"
	"github.com/2389/memos-gateway/internal/store"
)

// envelope is the uniform response body for every API endpoint: an echoed
// status code, a human-readable message, and the operation's payload.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// CreateUserRequest is the JSON request body for POST /users.
type CreateUserRequest struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	UserName string `json:"user_name,omitempty"`
}

// RegisterCubeRequest is the JSON request body for POST /mem_cubes.
type RegisterCubeRequest struct {
	MemCubeNameOrPath string `json:"mem_cube_name_or_path"`
	MemCubeID         string `json:"mem_cube_id,omitempty"`
	UserID            string `json:"user_id,omitempty"`
}

// ShareCubeRequest is the JSON request body for POST /mem_cubes/{id}/share.
type ShareCubeRequest struct {
	TargetUserID string `json:"target_user_id"`
}

// AddMemoryRequest is the JSON request body for POST /memories. At least one
// of messages, memory_content, or doc_path must be present; when several
// are, messages win over memory_content, which wins over doc_path.
type AddMemoryRequest struct {
	Messages      []memory.Message `json:"messages,omitempty"`
	MemoryContent string           `json:"memory_content,omitempty"`
	DocPath       string           `json:"doc_path,omitempty"`
	MemCubeID     string           `json:"mem_cube_id,omitempty"`
	UserID        string           `json:"user_id,omitempty"`
}

// SearchRequest is the JSON request body for POST /search.
type SearchRequest struct {
	Query          string   `json:"query"`
	UserID         string   `json:"user_id,omitempty"`
	InstallCubeIDs []string `json:"install_cube_ids,omitempty"`
}

// ChatRequest is the JSON request body for POST /chat.
type ChatRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id,omitempty"`
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (g *Gateway) writeSuccess(w http.ResponseWriter, message string, data any) {
	g.writeJSON(w, http.StatusOK, envelope{Code: http.StatusOK, Message: message, Data: data})
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, envelope{Code: status, Message: message, Data: nil})
}

// writeEngineError logs a failed engine operation and converts it into an
// error envelope by taxonomy: validation-class failures are the caller's
// fault, missing entities are 404, everything else is internal.
func (g *Gateway) writeEngineError(w http.ResponseWriter, op string, err error) {
	g.logger.Error("operation failed", "op", op, "error", err)
	g.writeError(w, statusFor(err), err.Error())
}

// statusFor classifies an engine error into an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidRole),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, store.ErrDuplicateUser),
		errors.Is(err, store.ErrDuplicateCube):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body into dst, rejecting unparseable input.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// engine returns the process engine, constructing it on first use.
func (g *Gateway) engine(ctx context.Context) (*memory.Engine, error) {
	return g.manager.GetOrCreate(ctx)
}

// handleConfigure handles POST /configure. The body is a partial engine
// configuration; present fields are applied over the running instance's
// settings and absent fields are left untouched.
func (g *Gateway) handleConfigure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var overrides config.EngineOverrides
	if err := decodeJSON(r, &overrides); err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := g.manager.Configure(r.Context(), overrides); err != nil {
		g.writeEngineError(w, "configure", err)
		return
	}
	g.writeSuccess(w, "Configuration set successfully", nil)
}

// handleUsers handles POST /users (create) and GET /users (list).
func (g *Gateway) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleCreateUser(w, r)
	case http.MethodGet:
		g.handleListUsers(w, r)
	default:
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (g *Gateway) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		g.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Role == "" {
		req.Role = string(store.RoleUser)
	}

	role, err := store.ParseRole(req.Role)
	if err != nil {
		g.writeEngineError(w, "create_user", err)
		return
	}

	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "create_user", err)
		return
	}

	userID, err := eng.CreateUser(r.Context(), req.UserID, role, req.UserName)
	if err != nil {
		g.writeEngineError(w, "create_user", err)
		return
	}
	g.writeSuccess(w, "User created successfully", userID)
}

func (g *Gateway) handleListUsers(w http.ResponseWriter, r *http.Request) {
	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "list_users", err)
		return
	}

	users, err := eng.ListUsers(r.Context())
	if err != nil {
		g.writeEngineError(w, "list_users", err)
		return
	}
	g.writeSuccess(w, "Users retrieved successfully", users)
}

// handleUserMe handles GET /users/me: the engine's current default user and
// their accessible cubes.
func (g *Gateway) handleUserMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "get_user_info", err)
		return
	}

	info, err := eng.GetUserInfo(r.Context())
	if err != nil {
		g.writeEngineError(w, "get_user_info", err)
		return
	}
	g.writeSuccess(w, "User info retrieved successfully", info)
}

// handleCubes handles POST /mem_cubes (register).
func (g *Gateway) handleCubes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req RegisterCubeRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MemCubeNameOrPath == "" {
		g.writeError(w, http.StatusBadRequest, "mem_cube_name_or_path is required")
		return
	}

	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "register_cube", err)
		return
	}

	cubeID, err := eng.RegisterCube(r.Context(), req.MemCubeNameOrPath, req.MemCubeID, req.UserID)
	if err != nil {
		g.writeEngineError(w, "register_cube", err)
		return
	}
	g.writeSuccess(w, "MemCube registered successfully", cubeID)
}

func (g *Gateway) handleUnregisterCube(w http.ResponseWriter, r *http.Request, cubeID string) {
	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "unregister_cube", err)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if err := eng.UnregisterCube(r.Context(), cubeID, userID); err != nil {
		g.writeEngineError(w, "unregister_cube", err)
		return
	}
	g.writeSuccess(w, "MemCube unregistered successfully", nil)
}

func (g *Gateway) handleShareCube(w http.ResponseWriter, r *http.Request, cubeID string) {
	var req ShareCubeRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TargetUserID == "" {
		g.writeError(w, http.StatusBadRequest, "target_user_id is required")
		return
	}

	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "share_cube", err)
		return
	}

	shared, err := eng.ShareCube(r.Context(), cubeID, req.TargetUserID)
	if err != nil {
		g.writeEngineError(w, "share_cube", err)
		return
	}
	if !shared {
		g.logger.Error("operation failed", "op", "share_cube", "cube_id", cubeID, "target_user_id", req.TargetUserID)
		g.writeError(w, http.StatusInternalServerError, "Failed to share MemCube")
		return
	}
	g.writeSuccess(w, "MemCube shared successfully", nil)
}

// handleMemories handles POST /memories (add) and GET /memories (get all).
func (g *Gateway) handleMemories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleAddMemories(w, r)
	case http.MethodGet:
		g.handleGetAllMemories(w, r)
	default:
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (g *Gateway) handleAddMemories(w http.ResponseWriter, r *http.Request) {
	var req AddMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Reject inputless requests before touching the engine
	if len(req.Messages) == 0 && req.MemoryContent == "" && req.DocPath == "" {
		g.writeError(w, http.StatusBadRequest, "one of messages, memory_content, or doc_path is required")
		return
	}

	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "add_memories", err)
		return
	}

	err = eng.Add(r.Context(), memory.AddRequest{
		Messages:      req.Messages,
		MemoryContent: req.MemoryContent,
		DocPath:       req.DocPath,
		CubeID:        req.MemCubeID,
		UserID:        req.UserID,
	})
	if err != nil {
		g.writeEngineError(w, "add_memories", err)
		return
	}
	g.writeSuccess(w, "Memories added successfully", nil)
}

func (g *Gateway) handleGetAllMemories(w http.ResponseWriter, r *http.Request) {
	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "get_all_memories", err)
		return
	}

	cubeID := r.URL.Query().Get("mem_cube_id")
	userID := r.URL.Query().Get("user_id")

	result, err := eng.GetAll(r.Context(), cubeID, userID)
	if err != nil {
		g.writeEngineError(w, "get_all_memories", err)
		return
	}
	g.writeSuccess(w, "Memories retrieved successfully", result)
}

func (g *Gateway) handleGetMemory(w http.ResponseWriter, r *http.Request, cubeID, memoryID string) {
	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "get_memory", err)
		return
	}

	mem, err := eng.Get(r.Context(), cubeID, memoryID, r.URL.Query().Get("user_id"))
	if err != nil {
		g.writeEngineError(w, "get_memory", err)
		return
	}
	g.writeSuccess(w, "Memory retrieved successfully", mem)
}

func (g *Gateway) handleUpdateMemory(w http.ResponseWriter, r *http.Request, cubeID, memoryID string) {
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "update_memory", err)
		return
	}

	if err := eng.Update(r.Context(), cubeID, memoryID, r.URL.Query().Get("user_id"), payload); err != nil {
		g.writeEngineError(w, "update_memory", err)
		return
	}
	g.writeSuccess(w, "Memory updated successfully", nil)
}

func (g *Gateway) handleDeleteMemory(w http.ResponseWriter, r *http.Request, cubeID, memoryID string) {
	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "delete_memory", err)
		return
	}

	if err := eng.Delete(r.Context(), cubeID, memoryID, r.URL.Query().Get("user_id")); err != nil {
		g.writeEngineError(w, "delete_memory", err)
		return
	}
	g.writeSuccess(w, "Memory deleted successfully", nil)
}

func (g *Gateway) handleDeleteAllMemories(w http.ResponseWriter, r *http.Request, cubeID string) {
	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "delete_all_memories", err)
		return
	}

	if err := eng.DeleteAll(r.Context(), cubeID, r.URL.Query().Get("user_id")); err != nil {
		g.writeEngineError(w, "delete_all_memories", err)
		return
	}
	g.writeSuccess(w, "All memories deleted successfully", nil)
}

// handleSearch handles POST /search.
func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		g.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "search", err)
		return
	}

	result, err := eng.Search(r.Context(), req.Query, req.UserID, req.InstallCubeIDs)
	if err != nil {
		g.writeEngineError(w, "search", err)
		return
	}
	g.writeSuccess(w, "Search completed successfully", result)
}

// handleChat handles POST /chat. A model that produced no reply is a failed
// operation; a reply that happens to be empty is still a success.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		g.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	eng, err := g.engine(r.Context())
	if err != nil {
		g.writeEngineError(w, "chat", err)
		return
	}

	reply, err := eng.Chat(r.Context(), req.Query, req.UserID)
	if errors.Is(err, memory.ErrNoResponse) {
		g.logger.Error("operation failed", "op", "chat", "error", err)
		g.writeError(w, http.StatusInternalServerError, "No response generated")
		return
	}
	if err != nil {
		g.writeEngineError(w, "chat", err)
		return
	}
	g.writeSuccess(w, "Chat response generated", reply)
}
