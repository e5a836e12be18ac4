// ABOUTME: Store interface and data types for memos-gateway persistence
// ABOUTME: Defines User, Cube, Memory structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when trying to create a user that already exists
var ErrDuplicateUser = errors.New("user already exists")

// ErrDuplicateCube is returned when trying to create a cube that already exists
var ErrDuplicateCube = errors.New("cube already exists")

// User represents an identity that owns and accesses memory cubes
type User struct {
	ID        string    `json:"user_id"`
	Name      string    `json:"user_name"`
	Role      UserRole  `json:"role"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Cube represents a named, ownable collection of memory records
type Cube struct {
	ID        string    `json:"cube_id"`
	Name      string    `json:"cube_name"`
	Path      string    `json:"cube_path,omitempty"` // source locator used to materialize the cube, may be empty
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Memory is the authoritative record of a single stored memory. Embedding is
// the engine-produced vector persisted alongside the content so the search
// index can be rebuilt without re-embedding; it never leaves the process as
// API output.
type Memory struct {
	ID        string         `json:"id"`
	CubeID    string         `json:"cube_id"`
	UserID    string         `json:"user_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Registry defines identity and cube operations. The engine lifecycle manager
// uses it to bootstrap the default user before an engine instance exists.
type Registry interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ValidateUser(ctx context.Context, id string) (bool, error)
	ListUsers(ctx context.Context) ([]*User, error)

	// Cubes
	CreateCube(ctx context.Context, cube *Cube) error
	GetCube(ctx context.Context, id string) (*Cube, error)
	DeleteCube(ctx context.Context, id string) error
	ListCubes(ctx context.Context) ([]*Cube, error)
	ListCubesForUser(ctx context.Context, userID string) ([]*Cube, error)
	AddCubeShare(ctx context.Context, cubeID, userID string) error
	CubeAccessible(ctx context.Context, cubeID, userID string) (bool, error)
}

// MemoryStore defines persistence for memory records
type MemoryStore interface {
	SaveMemory(ctx context.Context, mem *Memory) error
	GetMemory(ctx context.Context, cubeID, memoryID string) (*Memory, error)
	ListMemories(ctx context.Context, cubeID string) ([]*Memory, error)
	UpdateMemory(ctx context.Context, mem *Memory) error
	DeleteMemory(ctx context.Context, cubeID, memoryID string) error
	DeleteAllMemories(ctx context.Context, cubeID string) error
}

// Store combines registry and memory persistence backed by one database
type Store interface {
	Registry
	MemoryStore

	// Close releases any resources held by the store
	Close() error
}
