// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers user, cube, share, and memory persistence operations

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, id string) {
	t.Helper()
	err := s.CreateUser(context.Background(), &User{
		ID:        id,
		Name:      id,
		Role:      RoleUser,
		Active:    true,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func seedCube(t *testing.T, s *SQLiteStore, id, owner string) {
	t.Helper()
	err := s.CreateCube(context.Background(), &Cube{
		ID:        id,
		Name:      id,
		OwnerID:   owner,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("USER")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)

	role, err = ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
	assert.True(t, role.IsAdministrative())

	_, err = ParseRole("superuser")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "alice")

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
	assert.Equal(t, RoleUser, u.Role)
	assert.True(t, u.Active)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestCreateUser_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "alice")
	err := s.CreateUser(ctx, &User{ID: "alice", Name: "alice again", Role: RoleUser, Active: true})
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "alice")

	ok, err := s.ValidateUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ValidateUser(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListUsers(t *testing.T) {
	s := newTestStore(t)

	seedUser(t, s, "alice")
	seedUser(t, s, "bob")

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestCubeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "alice")
	seedCube(t, s, "cube1", "alice")

	c, err := s.GetCube(ctx, "cube1")
	require.NoError(t, err)
	assert.Equal(t, "alice", c.OwnerID)

	// Duplicate cube ID is rejected
	err = s.CreateCube(ctx, &Cube{ID: "cube1", Name: "again", OwnerID: "alice"})
	assert.ErrorIs(t, err, ErrDuplicateCube)

	require.NoError(t, s.DeleteCube(ctx, "cube1"))
	_, err = s.GetCube(ctx, "cube1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a silent no-op
	assert.NoError(t, s.DeleteCube(ctx, "cube1"))
}

func TestCubeSharing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "alice")
	seedUser(t, s, "bob")
	seedCube(t, s, "cube1", "alice")

	// Bob cannot see the cube yet
	ok, err := s.CubeAccessible(ctx, "cube1", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddCubeShare(ctx, "cube1", "bob"))

	ok, err = s.CubeAccessible(ctx, "cube1", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	// Owner always has access
	ok, err = s.CubeAccessible(ctx, "cube1", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-sharing is a silent no-op
	assert.NoError(t, s.AddCubeShare(ctx, "cube1", "bob"))

	// Sharing a missing cube or with a missing user fails
	assert.ErrorIs(t, s.AddCubeShare(ctx, "ghost", "bob"), ErrNotFound)
	assert.ErrorIs(t, s.AddCubeShare(ctx, "cube1", "ghost"), ErrNotFound)

	// Bob's cube list includes the shared cube
	cubes, err := s.ListCubesForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, cubes, 1)
	assert.Equal(t, "cube1", cubes[0].ID)
}

func TestMemoryPersistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "alice")
	seedCube(t, s, "cube1", "alice")

	mem := &Memory{
		ID:       "m1",
		CubeID:   "cube1",
		UserID:   "alice",
		Content:  "remember the milk",
		Metadata: map[string]any{"source": "chat"},
	}
	require.NoError(t, s.SaveMemory(ctx, mem))

	got, err := s.GetMemory(ctx, "cube1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", got.Content)
	assert.Equal(t, "chat", got.Metadata["source"])

	// Update replaces content and metadata
	got.Content = "remember the eggs"
	got.UpdatedAt = time.Now()
	require.NoError(t, s.UpdateMemory(ctx, got))

	got, err = s.GetMemory(ctx, "cube1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "remember the eggs", got.Content)

	// Update of a missing memory fails
	missing := &Memory{ID: "ghost", CubeID: "cube1"}
	assert.ErrorIs(t, s.UpdateMemory(ctx, missing), ErrNotFound)

	// Delete, then not found
	require.NoError(t, s.DeleteMemory(ctx, "cube1", "m1"))
	_, err = s.GetMemory(ctx, "cube1", "m1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteMemory(ctx, "cube1", "m1"), ErrNotFound)
}

func TestDeleteAllMemories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "alice")
	seedCube(t, s, "cube1", "alice")

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.SaveMemory(ctx, &Memory{
			ID: id, CubeID: "cube1", UserID: "alice", Content: "note " + id,
		}))
	}

	require.NoError(t, s.DeleteAllMemories(ctx, "cube1"))

	memories, err := s.ListMemories(ctx, "cube1")
	require.NoError(t, err)
	assert.Empty(t, memories)
}

func TestMemoryEmbeddingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "alice")
	seedCube(t, s, "cube1", "alice")

	require.NoError(t, s.SaveMemory(ctx, &Memory{
		ID: "m1", CubeID: "cube1", UserID: "alice", Content: "with vector",
		Embedding: []float32{0.25, -0.5, 0.75},
	}))
	require.NoError(t, s.SaveMemory(ctx, &Memory{
		ID: "m2", CubeID: "cube1", UserID: "alice", Content: "without vector",
	}))

	got, err := s.GetMemory(ctx, "cube1", "m1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 0.75}, got.Embedding)

	memories, err := s.ListMemories(ctx, "cube1")
	require.NoError(t, err)
	require.Len(t, memories, 2)
	assert.Len(t, memories[0].Embedding, 3)
	assert.Empty(t, memories[1].Embedding)
}
