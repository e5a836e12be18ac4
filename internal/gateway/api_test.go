// ABOUTME: Handler tests for the memory API endpoints
// ABOUTME: Drives the full gateway through httptest with a scripted chat client

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/memos-gateway/internal/config"
	"github.com/2389/memos-gateway/internal/lifecycle"
	"github.com/2389/memos-gateway/internal/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedChat struct {
	reply string
	err   error
}

func (s *scriptedChat) Generate(_ context.Context, _ []memory.Message) (string, error) {
	return s.reply, s.err
}

type testGateway struct {
	*Gateway
	chat    *scriptedChat
	manager *lifecycle.Manager
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	t.Setenv("MOS_USER_ID", "")
	t.Setenv("MOS_SESSION_ID", "")
	t.Setenv("MOS_TOP_K", "")

	chat := &scriptedChat{reply: "scripted reply"}
	manager := lifecycle.NewManager(
		filepath.Join(t.TempDir(), "test.db"),
		memory.WithEmbedder(memory.NewHashEmbedder()),
		memory.WithChatLLM(chat),
	)

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "localhost:0"

	g := New(cfg, manager, testLogger())
	t.Cleanup(func() { _ = manager.Close() })
	return &testGateway{Gateway: g, chat: chat, manager: manager}
}

// request performs one request against the gateway and decodes the envelope.
func (tg *testGateway) request(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	tg.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), "body: %s", rec.Body.String())
	return rec.Code, env
}

func TestRootRedirectsToDocs(t *testing.T) {
	tg := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	tg.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/docs", rec.Header().Get("Location"))
}

func TestDocsRendersHTML(t *testing.T) {
	tg := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	rec := httptest.NewRecorder()
	tg.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<h1>")
	assert.Contains(t, rec.Body.String(), "/mem_cubes")
}

func TestHealth(t *testing.T) {
	tg := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	tg.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestUnknownPathReturnsEnvelope(t *testing.T) {
	tg := newTestGateway(t)

	status, env := tg.request(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, http.StatusNotFound, env.Code)
}

func TestConfigure(t *testing.T) {
	tg := newTestGateway(t)

	status, env := tg.request(t, http.MethodPost, "/configure", map[string]any{
		"user_id": "configured_user",
		"top_k":   3,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Configuration set successfully", env.Message)

	eng := tg.manager.Current()
	require.NotNil(t, eng)
	assert.Equal(t, "configured_user", eng.UserID())
	assert.Equal(t, 3, eng.TopK())
}

func TestConfigure_PartialUpdate(t *testing.T) {
	tg := newTestGateway(t)

	status, _ := tg.request(t, http.MethodPost, "/configure", map[string]any{"top_k": 7})
	require.Equal(t, http.StatusOK, status)

	status, _ = tg.request(t, http.MethodPost, "/configure", map[string]any{"session_id": "s2"})
	require.Equal(t, http.StatusOK, status)

	eng := tg.manager.Current()
	require.NotNil(t, eng)
	assert.Equal(t, 7, eng.TopK())
	assert.Equal(t, "s2", eng.SessionID())
}

func TestConfigure_InvalidValues(t *testing.T) {
	tg := newTestGateway(t)

	status, env := tg.request(t, http.MethodPost, "/configure", map[string]any{"top_k": 0})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "top_k")
}

func TestConfigure_MalformedJSON(t *testing.T) {
	tg := newTestGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/configure", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	tg.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAndListUsers(t *testing.T) {
	tg := newTestGateway(t)

	status, env := tg.request(t, http.MethodPost, "/users", CreateUserRequest{
		UserID: "alice", Role: "admin", UserName: "Alice",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", env.Data)

	status, env = tg.request(t, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, status)

	users, ok := env.Data.([]any)
	require.True(t, ok)
	// The engine's bootstrapped default user plus alice
	assert.Len(t, users, 2)
}

func TestCreateUser_InvalidRole(t *testing.T) {
	tg := newTestGateway(t)

	status, env := tg.request(t, http.MethodPost, "/users", CreateUserRequest{
		UserID: "alice", Role: "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "invalid role")
}

func TestCreateUser_MissingID(t *testing.T) {
	tg := newTestGateway(t)

	status, _ := tg.request(t, http.MethodPost, "/users", CreateUserRequest{Role: "user"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUserMe(t *testing.T) {
	tg := newTestGateway(t)

	status, env := tg.request(t, http.MethodGet, "/users/me", nil)
	require.Equal(t, http.StatusOK, status)

	info, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "default_user", info["user_id"])
}

func TestCubeLifecycleOverHTTP(t *testing.T) {
	tg := newTestGateway(t)

	status, env := tg.request(t, http.MethodPost, "/mem_cubes", RegisterCubeRequest{
		MemCubeNameOrPath: "notes", MemCubeID: "cube-1",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cube-1", env.Data)

	status, _ = tg.request(t, http.MethodPost, "/users", CreateUserRequest{UserID: "bob"})
	require.Equal(t, http.StatusOK, status)

	status, env = tg.request(t, http.MethodPost, "/mem_cubes/cube-1/share", ShareCubeRequest{
		TargetUserID: "bob",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "MemCube shared successfully", env.Message)

	status, _ = tg.request(t, http.MethodDelete, "/mem_cubes/cube-1", nil)
	require.Equal(t, http.StatusOK, status)

	// Idempotent second unregister
	status, _ = tg.request(t, http.MethodDelete, "/mem_cubes/cube-1", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestShareCube_UnknownCubeFails(t *testing.T) {
	tg := newTestGateway(t)

	status, _ := tg.request(t, http.MethodPost, "/users", CreateUserRequest{UserID: "bob"})
	require.Equal(t, http.StatusOK, status)

	status, env := tg.request(t, http.MethodPost, "/mem_cubes/ghost/share", ShareCubeRequest{
		TargetUserID: "bob",
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to share MemCube", env.Message)
}

func TestAddMemories_NoInputRejectedBeforeEngine(t *testing.T) {
	tg := newTestGateway(t)

	status, env := tg.request(t, http.MethodPost, "/memories", AddMemoryRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "memory_content")

	// The engine was never constructed for the rejected request
	assert.Nil(t, tg.manager.Current())
}

func TestAddMemories_PrecedenceMessagesWin(t *testing.T) {
	tg := newTestGateway(t)

	status, _ := tg.request(t, http.MethodPost, "/memories", AddMemoryRequest{
		Messages:      []memory.Message{{Role: "user", Content: "from messages"}},
		MemoryContent: "from content",
	})
	require.Equal(t, http.StatusOK, status)

	status, env := tg.request(t, http.MethodGet, "/memories", nil)
	require.Equal(t, http.StatusOK, status)

	body, err := json.Marshal(env.Data)
	require.NoError(t, err)
	assert.Contains(t, string(body), "from messages")
	assert.NotContains(t, string(body), "from content")
}

func TestAddMemories_UnregisteredCube(t *testing.T) {
	tg := newTestGateway(t)

	status, env := tg.request(t, http.MethodPost, "/memories", AddMemoryRequest{
		MemoryContent: "x", MemCubeID: "ghost",
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, env.Message, "cube not registered")
}

func TestMemoryCRUDOverHTTP(t *testing.T) {
	tg := newTestGateway(t)

	status, env := tg.request(t, http.MethodPost, "/mem_cubes", RegisterCubeRequest{
		MemCubeNameOrPath: "notes", MemCubeID: "cube-1",
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = tg.request(t, http.MethodPost, "/memories", AddMemoryRequest{
		MemoryContent: "remember the milk", MemCubeID: "cube-1",
	})
	require.Equal(t, http.StatusOK, status)

	status, env = tg.request(t, http.MethodGet, "/memories?mem_cube_id=cube-1", nil)
	require.Equal(t, http.StatusOK, status)

	var all memory.GetAllResult
	remarshal(t, env.Data, &all)
	require.Len(t, all.TextMem, 1)
	require.Len(t, all.TextMem[0].Memories, 1)
	memID := all.TextMem[0].Memories[0].ID
	assert.Equal(t, "remember the milk", all.TextMem[0].Memories[0].Content)

	path := fmt.Sprintf("/memories/cube-1/%s", memID)

	status, env = tg.request(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Memory retrieved successfully", env.Message)

	status, _ = tg.request(t, http.MethodPut, path, map[string]any{
		"memory": "remember the bread", "tag": "errand",
	})
	require.Equal(t, http.StatusOK, status)

	status, env = tg.request(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, status)
	got, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "remember the bread", got["content"])

	// Wire shape is snake_case, and the stored vector stays internal
	for _, key := range []string{"id", "cube_id", "user_id", "metadata", "created_at"} {
		assert.Contains(t, got, key)
	}
	assert.NotContains(t, got, "Content")
	assert.NotContains(t, got, "embedding")

	status, _ = tg.request(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = tg.request(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGetMemory_NotFound(t *testing.T) {
	tg := newTestGateway(t)

	status, _ := tg.request(t, http.MethodPost, "/mem_cubes", RegisterCubeRequest{
		MemCubeNameOrPath: "notes", MemCubeID: "cube-1",
	})
	require.Equal(t, http.StatusOK, status)

	status, env := tg.request(t, http.MethodGet, "/memories/cube-1/missing-id", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, http.StatusNotFound, env.Code)
}

func TestDeleteAllMemories(t *testing.T) {
	tg := newTestGateway(t)

	status, _ := tg.request(t, http.MethodPost, "/mem_cubes", RegisterCubeRequest{
		MemCubeNameOrPath: "notes", MemCubeID: "cube-1",
	})
	require.Equal(t, http.StatusOK, status)
	status, _ = tg.request(t, http.MethodPost, "/memories", AddMemoryRequest{
		MemoryContent: "gone soon", MemCubeID: "cube-1",
	})
	require.Equal(t, http.StatusOK, status)

	status, env := tg.request(t, http.MethodDelete, "/memories/cube-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "All memories deleted successfully", env.Message)

	status, env = tg.request(t, http.MethodGet, "/memories?mem_cube_id=cube-1", nil)
	require.Equal(t, http.StatusOK, status)

	var all memory.GetAllResult
	remarshal(t, env.Data, &all)
	assert.Empty(t, all.TextMem[0].Memories)
}

func TestSearchOverHTTP(t *testing.T) {
	tg := newTestGateway(t)

	status, _ := tg.request(t, http.MethodPost, "/memories", AddMemoryRequest{
		MemoryContent: "the sky is blue",
	})
	require.Equal(t, http.StatusOK, status)

	status, env := tg.request(t, http.MethodPost, "/search", SearchRequest{
		Query: "the sky is blue",
	})
	require.Equal(t, http.StatusOK, status)

	var res memory.SearchResult
	remarshal(t, env.Data, &res)
	require.Len(t, res.TextMem, 1)
	require.NotEmpty(t, res.TextMem[0].Memories)
	assert.Equal(t, "the sky is blue", res.TextMem[0].Memories[0].Content)
}

func TestSearch_MissingQuery(t *testing.T) {
	tg := newTestGateway(t)

	status, _ := tg.request(t, http.MethodPost, "/search", SearchRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestChatOverHTTP(t *testing.T) {
	tg := newTestGateway(t)

	status, env := tg.request(t, http.MethodPost, "/chat", ChatRequest{Query: "hello"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Chat response generated", env.Message)
	assert.Equal(t, "scripted reply", env.Data)
}

func TestChat_NoResponseIsError(t *testing.T) {
	tg := newTestGateway(t)
	tg.chat.reply = ""
	tg.chat.err = memory.ErrNoResponse

	status, env := tg.request(t, http.MethodPost, "/chat", ChatRequest{Query: "hello"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "No response generated", env.Message)
}

func TestChat_EmptyReplyIsSuccess(t *testing.T) {
	tg := newTestGateway(t)
	tg.chat.reply = ""

	status, env := tg.request(t, http.MethodPost, "/chat", ChatRequest{Query: "hello"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Chat response generated", env.Message)
	assert.Equal(t, "", env.Data)
}

func TestMethodNotAllowed(t *testing.T) {
	tg := newTestGateway(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/users"},
		{http.MethodGet, "/configure"},
		{http.MethodGet, "/mem_cubes"},
		{http.MethodGet, "/chat"},
		{http.MethodPost, "/memories/cube-1/mem-1"},
	} {
		status, _ := tg.request(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, status, "%s %s", tc.method, tc.path)
	}
}

// remarshal round-trips an envelope's data through JSON into a typed value
func remarshal(t *testing.T, data any, dst any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}
