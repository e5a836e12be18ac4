// ABOUTME: The memory engine: user/cube management, memory ingestion, search, and chat
// ABOUTME: One Engine instance is process-wide, owned by the lifecycle manager

package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/2389/memos-gateway/internal/config"
	"github.com/2389/memos-gateway/internal/store"
)

// Engine is the memory-management engine behind the gateway. It owns the
// active configuration, the current default user/session scope, the vector
// index, and the model clients. An instance is constructed from a frozen
// EngineConfig; the mutable fields (user id, session id, top-k, toggles) are
// changed in place through Apply rather than by rebuilding the instance.
type Engine struct {
	mu        sync.RWMutex
	cfg       config.EngineConfig
	userID    string
	sessionID string

	store    store.Store
	index    *vectorIndex
	embedder Embedder
	chatLLM  ChatLLM
	logger   *slog.Logger
}

// Option configures the engine at construction time
type Option func(*Engine)

// WithEmbedder overrides the config-selected embedder
func WithEmbedder(e Embedder) Option {
	return func(eng *Engine) { eng.embedder = e }
}

// WithChatLLM overrides the config-selected chat client
func WithChatLLM(c ChatLLM) Option {
	return func(eng *Engine) { eng.chatLLM = c }
}

// New constructs an engine from a validated config and a store. The config's
// default user must already exist in the registry — the lifecycle manager
// bootstraps it before calling New. Persisted memories of every cube are
// re-indexed for search.
func New(ctx context.Context, cfg config.EngineConfig, st store.Store, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		userID:    cfg.UserID,
		sessionID: cfg.SessionID,
		store:     st,
		index:     newVectorIndex(),
		logger:    slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.embedder == nil {
		e.embedder = newEmbedder(cfg.MemReader.Embedder)
	}
	if e.chatLLM == nil {
		llm, err := newChatLLM(cfg.ChatModel)
		if err != nil {
			return nil, err
		}
		e.chatLLM = llm
	}

	ok, err := st.ValidateUser(ctx, cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("validating default user: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("default user %q does not exist", cfg.UserID)
	}

	if err := e.reindex(ctx); err != nil {
		return nil, fmt.Errorf("rebuilding search index: %w", err)
	}

	e.logger.Info("engine constructed", "user_id", cfg.UserID, "session_id", cfg.SessionID)
	return e, nil
}

// reindex loads the persisted memories of every registered cube into the
// vector index. Search and chat accept arbitrary user scopes, so a restart
// must restore the index for all cubes, not just the default user's.
func (e *Engine) reindex(ctx context.Context) error {
	cubes, err := e.store.ListCubes(ctx)
	if err != nil {
		return err
	}

	for _, cube := range cubes {
		memories, err := e.store.ListMemories(ctx, cube.ID)
		if err != nil {
			return err
		}
		for _, mem := range memories {
			if len(mem.Embedding) == 0 {
				continue
			}
			if err := e.index.add(ctx, mem, mem.Embedding); err != nil {
				return err
			}
		}
	}
	return nil
}

// --- mutable instance settings ---

// Settings carries a partial update for the engine's mutable fields.
// Nil fields are left untouched.
type Settings struct {
	UserID                 *string
	SessionID              *string
	TopK                   *int
	EnableTextualMemory    *bool
	EnableActivationMemory *bool
}

// Apply mutates the running instance's fields with the settings present in s.
// This is the deliberate escape hatch for /configure: the instance is not
// reconstructed.
func (e *Engine) Apply(s Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.UserID != nil {
		e.userID = *s.UserID
	}
	if s.SessionID != nil {
		e.sessionID = *s.SessionID
	}
	if s.TopK != nil {
		e.cfg.TopK = *s.TopK
	}
	if s.EnableTextualMemory != nil {
		e.cfg.EnableTextualMemory = *s.EnableTextualMemory
	}
	if s.EnableActivationMemory != nil {
		e.cfg.EnableActivationMemory = *s.EnableActivationMemory
	}
}

// UserID returns the engine's current default user id
func (e *Engine) UserID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.userID
}

// SessionID returns the engine's current default session id
func (e *Engine) SessionID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionID
}

// TopK returns the current retrieval depth
func (e *Engine) TopK() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.TopK
}

// Config returns a snapshot of the active configuration
func (e *Engine) Config() config.EngineConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

func (e *Engine) textualEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.EnableTextualMemory
}

func (e *Engine) activationEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.EnableActivationMemory
}

// resolveUser substitutes the engine's default user for an absent user id
func (e *Engine) resolveUser(userID string) string {
	if userID == "" {
		return e.UserID()
	}
	return userID
}

// defaultCubeID is the cube implicitly owned by a user when no cube id is given
func defaultCubeID(userID string) string {
	return userID + "_default_cube"
}

// --- users ---

// CreateUser registers a new user with the given role. An empty name
// defaults to the user id. Returns the created user's id.
func (e *Engine) CreateUser(ctx context.Context, userID string, role store.UserRole, name string) (string, error) {
	if name == "" {
		name = userID
	}
	err := e.store.CreateUser(ctx, &store.User{
		ID:        userID,
		Name:      name,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

// ListUsers returns all active users
func (e *Engine) ListUsers(ctx context.Context) ([]*store.User, error) {
	return e.store.ListUsers(ctx)
}

// GetUserInfo returns the current default user and their accessible cubes
func (e *Engine) GetUserInfo(ctx context.Context) (*UserInfo, error) {
	userID := e.UserID()

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	cubes, err := e.store.ListCubesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	info := &UserInfo{
		UserID:          user.ID,
		UserName:        user.Name,
		Role:            string(user.Role),
		AccessibleCubes: make([]CubeInfo, len(cubes)),
	}
	for i, cube := range cubes {
		info.AccessibleCubes[i] = CubeInfo{
			CubeID:   cube.ID,
			CubeName: cube.Name,
			OwnerID:  cube.OwnerID,
			IsOwned:  cube.OwnerID == user.ID,
		}
	}
	return info, nil
}

// --- cubes ---

// RegisterCube creates a cube from a name or path locator. An empty cube id
// gets a generated one; an empty user id resolves to the default user.
// Returns the cube's id.
func (e *Engine) RegisterCube(ctx context.Context, nameOrPath, cubeID, userID string) (string, error) {
	userID = e.resolveUser(userID)

	ok, err := e.store.ValidateUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: user %s", store.ErrNotFound, userID)
	}

	if cubeID == "" {
		cubeID = uuid.New().String()
	}

	cube := &store.Cube{
		ID:        cubeID,
		Name:      nameOrPath,
		OwnerID:   userID,
		CreatedAt: time.Now(),
	}
	if strings.ContainsRune(nameOrPath, os.PathSeparator) || strings.ContainsRune(nameOrPath, '/') {
		cube.Path = nameOrPath
	}

	if err := e.store.CreateCube(ctx, cube); err != nil {
		return "", err
	}

	e.logger.Info("registered cube", "cube_id", cubeID, "user_id", userID)
	return cubeID, nil
}

// UnregisterCube removes a cube, its shares, and its memories. Unregistering
// a cube that does not exist succeeds silently. The user id scopes the
// authorization check and defaults to the engine's default user.
func (e *Engine) UnregisterCube(ctx context.Context, cubeID, userID string) error {
	userID = e.resolveUser(userID)

	_, err := e.store.GetCube(ctx, cubeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ok, err := e.store.CubeAccessible(ctx, cubeID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s is not authorized for cube %s", userID, cubeID)
	}

	if err := e.store.DeleteCube(ctx, cubeID); err != nil {
		return err
	}
	if err := e.index.dropCube(cubeID); err != nil {
		e.logger.Debug("dropping cube index", "cube_id", cubeID, "error", err)
	}

	e.logger.Info("unregistered cube", "cube_id", cubeID, "user_id", userID)
	return nil
}

// ShareCube grants the target user access to a cube. The boolean reports the
// engine's explicit outcome: false with a nil error means the share was
// refused (missing cube or user), which callers surface as an operation
// failure rather than an exception.
func (e *Engine) ShareCube(ctx context.Context, cubeID, targetUserID string) (bool, error) {
	err := e.store.AddCubeShare(ctx, cubeID, targetUserID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// checkCube verifies the cube exists and is accessible to the user
func (e *Engine) checkCube(ctx context.Context, cubeID, userID string) error {
	ok, err := e.store.CubeAccessible(ctx, cubeID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCubeNotRegistered, cubeID)
	}
	return nil
}

// --- memories ---

// Add stores new memories from one of the three input kinds. Conversational
// messages become one memory each; content and documents are chunked first.
func (e *Engine) Add(ctx context.Context, req AddRequest) error {
	if !e.textualEnabled() {
		return ErrTextualMemoryDisabled
	}

	userID := e.resolveUser(req.UserID)
	cubeID := req.CubeID
	if cubeID == "" {
		cubeID = defaultCubeID(userID)
		if err := e.ensureDefaultCube(ctx, cubeID, userID); err != nil {
			return err
		}
	} else if err := e.checkCube(ctx, cubeID, userID); err != nil {
		return err
	}

	switch {
	case len(req.Messages) > 0:
		for _, msg := range req.Messages {
			content := msg.Role + ": " + msg.Content
			meta := map[string]any{"source": "conversation", "role": msg.Role}
			if err := e.storeMemory(ctx, cubeID, userID, content, meta); err != nil {
				return err
			}
		}

	case req.MemoryContent != "":
		chunker := e.Config().MemReader.Chunker
		for _, chunk := range chunkText(req.MemoryContent, chunker.ChunkSize, chunker.ChunkOverlap) {
			meta := map[string]any{"source": "content"}
			if err := e.storeMemory(ctx, cubeID, userID, chunk, meta); err != nil {
				return err
			}
		}

	case req.DocPath != "":
		data, err := os.ReadFile(req.DocPath)
		if err != nil {
			return fmt.Errorf("reading document: %w", err)
		}
		chunker := e.Config().MemReader.Chunker
		for _, chunk := range chunkText(string(data), chunker.ChunkSize, chunker.ChunkOverlap) {
			meta := map[string]any{"source": "document", "doc_path": req.DocPath}
			if err := e.storeMemory(ctx, cubeID, userID, chunk, meta); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("no memory input provided")
	}

	return nil
}

// ensureDefaultCube registers the user's implicit default cube if absent
func (e *Engine) ensureDefaultCube(ctx context.Context, cubeID, userID string) error {
	_, err := e.store.GetCube(ctx, cubeID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	createErr := e.store.CreateCube(ctx, &store.Cube{
		ID:        cubeID,
		Name:      "default",
		OwnerID:   userID,
		CreatedAt: time.Now(),
	})
	// A concurrent request may have created it in the meantime
	if createErr != nil && !errors.Is(createErr, store.ErrDuplicateCube) {
		return createErr
	}
	return nil
}

// storeMemory embeds one piece of content, persists it, and indexes it
func (e *Engine) storeMemory(ctx context.Context, cubeID, userID, content string, meta map[string]any) error {
	embedding, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding content: %w", err)
	}

	now := time.Now()
	mem := &store.Memory{
		ID:        ulid.Make().String(),
		CubeID:    cubeID,
		UserID:    userID,
		Content:   content,
		Metadata:  meta,
		Embedding: embedding,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.store.SaveMemory(ctx, mem); err != nil {
		return err
	}
	return e.index.add(ctx, mem, embedding)
}

// Get returns a single memory by cube and id. A missing memory is
// store.ErrNotFound, never a silent empty result.
func (e *Engine) Get(ctx context.Context, cubeID, memoryID, userID string) (*store.Memory, error) {
	if !e.textualEnabled() {
		return nil, ErrTextualMemoryDisabled
	}

	userID = e.resolveUser(userID)
	if err := e.checkCube(ctx, cubeID, userID); err != nil {
		return nil, err
	}
	return e.store.GetMemory(ctx, cubeID, memoryID)
}

// GetAll returns the memories of one cube, or of every cube accessible to
// the user when cubeID is empty. The activation section mirrors the textual
// grouping but stays empty while that subsystem is disabled.
func (e *Engine) GetAll(ctx context.Context, cubeID, userID string) (*GetAllResult, error) {
	if !e.textualEnabled() {
		return nil, ErrTextualMemoryDisabled
	}

	userID = e.resolveUser(userID)

	cubeIDs, err := e.scopeCubes(ctx, cubeID, userID)
	if err != nil {
		return nil, err
	}

	result := &GetAllResult{
		TextMem: make([]CubeMemoryGroup, 0, len(cubeIDs)),
		ActMem:  []CubeMemoryGroup{},
	}
	for _, id := range cubeIDs {
		memories, err := e.store.ListMemories(ctx, id)
		if err != nil {
			return nil, err
		}
		result.TextMem = append(result.TextMem, CubeMemoryGroup{CubeID: id, Memories: memories})
		if e.activationEnabled() {
			result.ActMem = append(result.ActMem, CubeMemoryGroup{CubeID: id, Memories: []*store.Memory{}})
		}
	}
	return result, nil
}

// scopeCubes resolves an optional cube id into the list of cube ids an
// operation should touch
func (e *Engine) scopeCubes(ctx context.Context, cubeID, userID string) ([]string, error) {
	if cubeID != "" {
		if err := e.checkCube(ctx, cubeID, userID); err != nil {
			return nil, err
		}
		return []string{cubeID}, nil
	}

	cubes, err := e.store.ListCubesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(cubes))
	for i, cube := range cubes {
		ids[i] = cube.ID
	}
	return ids, nil
}

// Search runs a similarity search across the given cubes, or across every
// cube accessible to the user when cubeIDs is empty. Ranking is entirely the
// index's responsibility; results come back best first per cube.
func (e *Engine) Search(ctx context.Context, query, userID string, cubeIDs []string) (*SearchResult, error) {
	if !e.textualEnabled() {
		return nil, ErrTextualMemoryDisabled
	}

	userID = e.resolveUser(userID)

	if len(cubeIDs) == 0 {
		cubes, err := e.store.ListCubesForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, cube := range cubes {
			cubeIDs = append(cubeIDs, cube.ID)
		}
	} else {
		for _, id := range cubeIDs {
			if err := e.checkCube(ctx, id, userID); err != nil {
				return nil, err
			}
		}
	}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	topK := e.TopK()
	result := &SearchResult{
		TextMem: make([]CubeSearchGroup, 0, len(cubeIDs)),
		ActMem:  []CubeSearchGroup{},
	}
	for _, id := range cubeIDs {
		hits, err := e.index.search(ctx, id, embedding, topK)
		if err != nil {
			return nil, err
		}

		group := CubeSearchGroup{CubeID: id, Memories: make([]ScoredMemory, 0, len(hits))}
		for _, hit := range hits {
			mem, err := e.store.GetMemory(ctx, id, hit.ID)
			if errors.Is(err, store.ErrNotFound) {
				continue // index lag after a delete
			}
			if err != nil {
				return nil, err
			}
			group.Memories = append(group.Memories, ScoredMemory{Memory: mem, Score: hit.Score})
		}
		result.TextMem = append(result.TextMem, group)
	}
	return result, nil
}

// Update replaces a memory's content fields by id. The payload shape is
// engine-defined: "memory" or "content" replaces the text (re-embedding it);
// any other keys are merged into the metadata.
func (e *Engine) Update(ctx context.Context, cubeID, memoryID, userID string, payload map[string]any) error {
	if !e.textualEnabled() {
		return ErrTextualMemoryDisabled
	}

	userID = e.resolveUser(userID)
	if err := e.checkCube(ctx, cubeID, userID); err != nil {
		return err
	}

	mem, err := e.store.GetMemory(ctx, cubeID, memoryID)
	if err != nil {
		return err
	}

	newContent := mem.Content
	if v, ok := payload["memory"].(string); ok {
		newContent = v
	} else if v, ok := payload["content"].(string); ok {
		newContent = v
	}

	if mem.Metadata == nil {
		mem.Metadata = make(map[string]any)
	}
	for k, v := range payload {
		if k == "memory" || k == "content" {
			continue
		}
		mem.Metadata[k] = v
	}

	if newContent != mem.Content {
		embedding, err := e.embedder.Embed(ctx, newContent)
		if err != nil {
			return fmt.Errorf("embedding content: %w", err)
		}
		mem.Content = newContent
		mem.Embedding = embedding

		if err := e.index.remove(ctx, cubeID, memoryID); err != nil {
			e.logger.Debug("removing stale index entry", "memory_id", memoryID, "error", err)
		}
		if err := e.index.add(ctx, mem, embedding); err != nil {
			return err
		}
	}

	mem.UpdatedAt = time.Now()
	return e.store.UpdateMemory(ctx, mem)
}

// Delete removes a single memory from a cube
func (e *Engine) Delete(ctx context.Context, cubeID, memoryID, userID string) error {
	if !e.textualEnabled() {
		return ErrTextualMemoryDisabled
	}

	userID = e.resolveUser(userID)
	if err := e.checkCube(ctx, cubeID, userID); err != nil {
		return err
	}

	if err := e.store.DeleteMemory(ctx, cubeID, memoryID); err != nil {
		return err
	}
	if err := e.index.remove(ctx, cubeID, memoryID); err != nil {
		e.logger.Debug("removing index entry", "memory_id", memoryID, "error", err)
	}
	return nil
}

// DeleteAll removes every memory in a cube
func (e *Engine) DeleteAll(ctx context.Context, cubeID, userID string) error {
	if !e.textualEnabled() {
		return ErrTextualMemoryDisabled
	}

	userID = e.resolveUser(userID)
	if err := e.checkCube(ctx, cubeID, userID); err != nil {
		return err
	}

	if err := e.store.DeleteAllMemories(ctx, cubeID); err != nil {
		return err
	}
	if err := e.index.dropCube(cubeID); err != nil {
		e.logger.Debug("dropping cube index", "cube_id", cubeID, "error", err)
	}
	return nil
}

// --- chat ---

// Chat answers a single-turn query grounded in the user's memories. A model
// that produced nothing surfaces as ErrNoResponse; a reply that happens to
// be the empty string is a normal result.
func (e *Engine) Chat(ctx context.Context, query, userID string) (string, error) {
	userID = e.resolveUser(userID)

	var grounding []string
	if e.textualEnabled() {
		res, err := e.Search(ctx, query, userID, nil)
		if err != nil {
			return "", fmt.Errorf("retrieving memories: %w", err)
		}
		for _, group := range res.TextMem {
			for _, mem := range group.Memories {
				grounding = append(grounding, "- "+mem.Content)
			}
		}
	}

	system := "You are a knowledgeable and helpful assistant with access to the user's memories."
	if len(grounding) > 0 {
		system += "\n\nRelevant memories:\n" + strings.Join(grounding, "\n")
	}

	messages := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: query},
	}

	reply, err := e.chatLLM.Generate(ctx, messages)
	if err != nil {
		return "", err
	}

	e.logger.Debug("chat reply generated", "user_id", userID, "memories", len(grounding))
	return reply, nil
}
