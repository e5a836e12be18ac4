// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/cube registry and memory persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cubes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (owner_id) REFERENCES users(id)
		);

		CREATE TABLE IF NOT EXISTS cube_shares (
			cube_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (cube_id, user_id),
			FOREIGN KEY (cube_id) REFERENCES cubes(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS idx_cube_shares_user
			ON cube_shares(user_id);

		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			cube_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			embedding TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (cube_id) REFERENCES cubes(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_memories_cube
			ON memories(cube_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Users ---

// CreateUser inserts a new user. Returns ErrDuplicateUser if the ID is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, name, role, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, string(user.Role), boolToInt(user.Active), formatTime(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking insert result: %w", err)
	}
	if rows == 0 {
		return ErrDuplicateUser
	}

	s.logger.Debug("created user", "user_id", user.ID, "role", user.Role)
	return nil
}

// GetUser returns the user with the given ID, or ErrNotFound
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, name, role, active, created_at FROM users WHERE id = ?`

	var u User
	var role, createdAt string
	var active int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &role, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	u.Role = UserRole(role)
	u.Active = active != 0
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// ValidateUser reports whether an active user with the given ID exists
func (s *SQLiteStore) ValidateUser(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users WHERE id = ? AND active = 1`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("validating user: %w", err)
	}
	return n > 0, nil
}

// ListUsers returns all active users ordered by creation time
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	query := `SELECT id, name, role, active, created_at FROM users WHERE active = 1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		var role, createdAt string
		var active int
		if err := rows.Scan(&u.ID, &u.Name, &role, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		u.Role = UserRole(role)
		u.Active = active != 0
		u.CreatedAt = parseTime(createdAt)
		users = append(users, &u)
	}
	return users, rows.Err()
}

// --- Cubes ---

// CreateCube inserts a new cube. Returns ErrDuplicateCube if the ID is taken.
func (s *SQLiteStore) CreateCube(ctx context.Context, cube *Cube) error {
	query := `
		INSERT INTO cubes (id, name, path, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		cube.ID, cube.Name, cube.Path, cube.OwnerID, formatTime(cube.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating cube: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking insert result: %w", err)
	}
	if rows == 0 {
		return ErrDuplicateCube
	}

	s.logger.Debug("created cube", "cube_id", cube.ID, "owner", cube.OwnerID)
	return nil
}

// GetCube returns the cube with the given ID, or ErrNotFound
func (s *SQLiteStore) GetCube(ctx context.Context, id string) (*Cube, error) {
	query := `SELECT id, name, path, owner_id, created_at FROM cubes WHERE id = ?`

	var c Cube
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Path, &c.OwnerID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting cube: %w", err)
	}

	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// DeleteCube removes a cube and its shares and memories. Deleting a cube that
// does not exist succeeds silently.
func (s *SQLiteStore) DeleteCube(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cubes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting cube: %w", err)
	}
	return nil
}

// ListCubes returns every registered cube
func (s *SQLiteStore) ListCubes(ctx context.Context) ([]*Cube, error) {
	query := `SELECT id, name, path, owner_id, created_at FROM cubes ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing cubes: %w", err)
	}
	defer rows.Close()

	var cubes []*Cube
	for rows.Next() {
		var c Cube
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Path, &c.OwnerID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning cube: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		cubes = append(cubes, &c)
	}
	return cubes, rows.Err()
}

// ListCubesForUser returns cubes the user owns plus cubes shared with them
func (s *SQLiteStore) ListCubesForUser(ctx context.Context, userID string) ([]*Cube, error) {
	query := `
		SELECT id, name, path, owner_id, created_at FROM cubes WHERE owner_id = ?
		UNION
		SELECT c.id, c.name, c.path, c.owner_id, c.created_at
		FROM cubes c JOIN cube_shares cs ON cs.cube_id = c.id
		WHERE cs.user_id = ?
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cubes: %w", err)
	}
	defer rows.Close()

	var cubes []*Cube
	for rows.Next() {
		var c Cube
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Path, &c.OwnerID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning cube: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		cubes = append(cubes, &c)
	}
	return cubes, rows.Err()
}

// AddCubeShare grants a user access to a cube. The cube and user must exist;
// re-sharing an already shared cube succeeds silently.
func (s *SQLiteStore) AddCubeShare(ctx context.Context, cubeID, userID string) error {
	if _, err := s.GetCube(ctx, cubeID); err != nil {
		return err
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}

	query := `
		INSERT OR IGNORE INTO cube_shares (cube_id, user_id, created_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, cubeID, userID, formatTime(time.Now())); err != nil {
		return fmt.Errorf("sharing cube: %w", err)
	}

	s.logger.Debug("shared cube", "cube_id", cubeID, "user_id", userID)
	return nil
}

// CubeAccessible reports whether the user owns the cube or has it shared with them
func (s *SQLiteStore) CubeAccessible(ctx context.Context, cubeID, userID string) (bool, error) {
	query := `
		SELECT COUNT(1) FROM cubes WHERE id = ? AND owner_id = ?
	`
	var n int
	if err := s.db.QueryRowContext(ctx, query, cubeID, userID).Scan(&n); err != nil {
		return false, fmt.Errorf("checking cube ownership: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	query = `SELECT COUNT(1) FROM cube_shares WHERE cube_id = ? AND user_id = ?`
	if err := s.db.QueryRowContext(ctx, query, cubeID, userID).Scan(&n); err != nil {
		return false, fmt.Errorf("checking cube share: %w", err)
	}
	return n > 0, nil
}

// --- Memories ---

// SaveMemory inserts a memory record
func (s *SQLiteStore) SaveMemory(ctx context.Context, mem *Memory) error {
	meta, emb, err := marshalMemoryFields(mem)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO memories (id, cube_id, user_id, content, metadata, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		mem.ID, mem.CubeID, mem.UserID, mem.Content, meta, emb,
		formatTime(mem.CreatedAt), formatTime(mem.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving memory: %w", err)
	}
	return nil
}

// GetMemory returns a memory by cube and ID, or ErrNotFound
func (s *SQLiteStore) GetMemory(ctx context.Context, cubeID, memoryID string) (*Memory, error) {
	query := `
		SELECT id, cube_id, user_id, content, metadata, embedding, created_at, updated_at
		FROM memories WHERE cube_id = ? AND id = ?
	`

	var m Memory
	var meta, emb, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, cubeID, memoryID).Scan(
		&m.ID, &m.CubeID, &m.UserID, &m.Content, &meta, &emb, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting memory: %w", err)
	}

	if err := unmarshalMemoryFields(&m, meta, emb); err != nil {
		return nil, err
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

// ListMemories returns all memories in a cube ordered by creation time
func (s *SQLiteStore) ListMemories(ctx context.Context, cubeID string) ([]*Memory, error) {
	query := `
		SELECT id, cube_id, user_id, content, metadata, embedding, created_at, updated_at
		FROM memories WHERE cube_id = ? ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, cubeID)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	var memories []*Memory
	for rows.Next() {
		var m Memory
		var meta, emb, createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &m.CubeID, &m.UserID, &m.Content, &meta, &emb, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		if err := unmarshalMemoryFields(&m, meta, emb); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		m.UpdatedAt = parseTime(updatedAt)
		memories = append(memories, &m)
	}
	return memories, rows.Err()
}

// UpdateMemory replaces a memory's content and metadata. Returns ErrNotFound
// if the memory does not exist.
func (s *SQLiteStore) UpdateMemory(ctx context.Context, mem *Memory) error {
	meta, emb, err := marshalMemoryFields(mem)
	if err != nil {
		return err
	}

	query := `
		UPDATE memories SET content = ?, metadata = ?, embedding = ?, updated_at = ?
		WHERE cube_id = ? AND id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		mem.Content, meta, emb, formatTime(mem.UpdatedAt), mem.CubeID, mem.ID)
	if err != nil {
		return fmt.Errorf("updating memory: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMemory removes a single memory. Returns ErrNotFound if it does not exist.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, cubeID, memoryID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE cube_id = ? AND id = ?`, cubeID, memoryID)
	if err != nil {
		return fmt.Errorf("deleting memory: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAllMemories removes every memory in a cube
func (s *SQLiteStore) DeleteAllMemories(ctx context.Context, cubeID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE cube_id = ?`, cubeID); err != nil {
		return fmt.Errorf("deleting memories: %w", err)
	}
	return nil
}

// --- helpers ---

func marshalMemoryFields(mem *Memory) (meta, emb string, err error) {
	metaBytes, err := json.Marshal(mem.Metadata)
	if err != nil {
		return "", "", fmt.Errorf("marshaling metadata: %w", err)
	}
	embedding := mem.Embedding
	if embedding == nil {
		embedding = []float32{}
	}
	embBytes, err := json.Marshal(embedding)
	if err != nil {
		return "", "", fmt.Errorf("marshaling embedding: %w", err)
	}
	return string(metaBytes), string(embBytes), nil
}

func unmarshalMemoryFields(m *Memory, meta, emb string) error {
	if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
		return fmt.Errorf("unmarshaling metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(emb), &m.Embedding); err != nil {
		return fmt.Errorf("unmarshaling embedding: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
