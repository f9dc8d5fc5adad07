package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jllopis/telos/pkg/core"
)

// SQLiteStore persists memories, tasks and the embedding cache in SQLite.
// Vector search is brute force over stored embeddings, which is fine for
// single-agent volumes; larger deployments should front memories with the
// qdrant vector store instead.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and ensures schema.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an existing database handle and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateMemory stores a single memory record in the named table partition.
func (s *SQLiteStore) CreateMemory(ctx context.Context, table string, memory *core.Memory) error {
	content, err := json.Marshal(memory.Content)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(memory.Metadata)
	if err != nil {
		return err
	}
	embedding, err := encodeEmbedding(memory.Embedding)
	if err != nil {
		return err
	}
	createdAt := memory.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, table_name, entity_id, agent_id, room_id, world_id,
			content_json, embedding_json, unique_flag, metadata_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		memory.ID.String(),
		table,
		memory.EntityID.String(),
		memory.AgentID.String(),
		memory.RoomID.String(),
		memory.WorldID.String(),
		string(content),
		embedding,
		boolToInt(memory.Unique),
		string(metadata),
		createdAt,
	)
	return err
}

// GetMemoryByID returns the memory with the given id, or nil when absent.
func (s *SQLiteStore) GetMemoryByID(ctx context.Context, table string, id uuid.UUID) (*core.Memory, error) {
	rows, err := s.db.QueryContext(ctx, memorySelect+`
		WHERE table_name = ? AND id = ?
	`, table, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memories, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}
	if len(memories) == 0 {
		return nil, nil
	}
	return &memories[0], nil
}

// GetMemories returns memories matching the query, newest first.
func (s *SQLiteStore) GetMemories(ctx context.Context, table string, query core.MemoryQuery) ([]core.Memory, error) {
	q := memorySelect + ` WHERE table_name = ?`
	args := []any{table}
	addFilter := func(clause string, value any) {
		q += " AND " + clause
		args = append(args, value)
	}
	if query.RoomID != uuid.Nil {
		addFilter("room_id = ?", query.RoomID.String())
	}
	if query.EntityID != uuid.Nil {
		addFilter("entity_id = ?", query.EntityID.String())
	}
	if query.Unique {
		addFilter("unique_flag = ?", 1)
	}
	if !query.Start.IsZero() {
		addFilter("created_at >= ?", query.Start)
	}
	if !query.End.IsZero() {
		addFilter("created_at <= ?", query.End)
	}
	q += " ORDER BY created_at DESC, rowid DESC"
	if query.Count > 0 {
		q += " LIMIT ?"
		args = append(args, query.Count)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SearchMemories ranks stored embeddings against the query vector and
// returns matches at or above the threshold, best first.
func (s *SQLiteStore) SearchMemories(ctx context.Context, table string, search core.MemorySearch) ([]core.Memory, error) {
	q := memorySelect + ` WHERE table_name = ? AND embedding_json != ''`
	args := []any{table}
	if search.RoomID != uuid.Nil {
		q += " AND room_id = ?"
		args = append(args, search.RoomID.String())
	}
	if search.Unique {
		q += " AND unique_flag = 1"
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}

	var matches []core.Memory
	for _, m := range candidates {
		score := CosineSimilarity(search.Embedding, m.Embedding)
		if score < search.MatchThreshold {
			continue
		}
		m.Similarity = score
		matches = append(matches, m)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if search.Count > 0 && len(matches) > search.Count {
		matches = matches[:search.Count]
	}
	return matches, nil
}

// MemoriesWithEmbeddings returns recent memories carrying an embedding.
func (s *SQLiteStore) MemoriesWithEmbeddings(ctx context.Context, table string, limit int) ([]core.Memory, error) {
	q := memorySelect + `
		WHERE table_name = ? AND embedding_json != ''
		ORDER BY created_at DESC, rowid DESC
	`
	args := []any{table}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// DeleteMemory removes the memory with the given id. Deleting a missing
// memory is not an error.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, table string, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE table_name = ? AND id = ?`,
		table, id.String())
	return err
}

// CountMemories counts memories in a room, optionally unique ones only.
func (s *SQLiteStore) CountMemories(ctx context.Context, table string, roomID uuid.UUID, unique bool) (int, error) {
	q := `SELECT COUNT(*) FROM memories WHERE table_name = ?`
	args := []any{table}
	if roomID != uuid.Nil {
		q += " AND room_id = ?"
		args = append(args, roomID.String())
	}
	if unique {
		q += " AND unique_flag = 1"
	}
	var count int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CreateTask stores a single task record.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *core.Task) error {
	tags, err := json.Marshal(task.Tags)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(task.Metadata)
	if err != nil {
		return err
	}
	updatedAt := task.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, name, room_id, world_id, entity_id, description,
			tags_json, metadata_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID.String(),
		task.Name,
		task.RoomID.String(),
		task.WorldID.String(),
		task.EntityID.String(),
		task.Description,
		string(tags),
		string(metadata),
		updatedAt,
	)
	return err
}

// GetTask returns the task with the given id, or nil when absent.
func (s *SQLiteStore) GetTask(ctx context.Context, id uuid.UUID) (*core.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

// Tasks returns tasks matching the query. Tag filtering requires every
// listed tag to be present.
func (s *SQLiteStore) Tasks(ctx context.Context, query core.TaskQuery) ([]core.Task, error) {
	q := taskSelect
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if query.RoomID != uuid.Nil {
		addFilter("room_id = ?", query.RoomID.String())
	}
	if query.Name != "" {
		addFilter("name = ?", query.Name)
	}
	q += where + " ORDER BY updated_at ASC, rowid ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(query.Tags) == 0 {
		return tasks, nil
	}

	// Tags live in a JSON column; filter after scan.
	var filtered []core.Task
	for _, t := range tasks {
		hasAll := true
		for _, tag := range query.Tags {
			if !t.HasTag(tag) {
				hasAll = false
				break
			}
		}
		if hasAll {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// UpdateTask replaces the stored record of an existing task.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task *core.Task) error {
	tags, err := json.Marshal(task.Tags)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(task.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			name = ?, room_id = ?, world_id = ?, entity_id = ?,
			description = ?, tags_json = ?, metadata_json = ?, updated_at = ?
		WHERE id = ?
	`,
		task.Name,
		task.RoomID.String(),
		task.WorldID.String(),
		task.EntityID.String(),
		task.Description,
		string(tags),
		string(metadata),
		time.Now().UTC(),
		task.ID.String(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("task not found")
	}
	return nil
}

// DeleteTask removes the task with the given id. Deleting a missing task
// is not an error.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.String())
	return err
}

// GetCache returns the cached value for key when present and not expired.
func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return nil, false, nil
	}
	return value, true, nil
}

// SetCache stores value under key. A zero expiresAt means no expiry.
func (s *SQLiteStore) SetCache(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	var expiry any
	if !expiresAt.IsZero() {
		expiry = expiresAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiry)
	return err
}

// DeleteCache removes the cached value for key.
func (s *SQLiteStore) DeleteCache(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key)
	return err
}

const memorySelect = `
	SELECT id, entity_id, agent_id, room_id, world_id,
		content_json, embedding_json, unique_flag, metadata_json, created_at
	FROM memories
`

const taskSelect = `
	SELECT id, name, room_id, world_id, entity_id, description,
		tags_json, metadata_json, updated_at
	FROM tasks
`

func scanMemories(rows *sql.Rows) ([]core.Memory, error) {
	var memories []core.Memory
	for rows.Next() {
		var (
			m                                         core.Memory
			id, entityID, agentID, roomID, worldID    string
			contentJSON, embeddingJSON, metadataJSON  string
			uniqueFlag                                int
			createdAt                                 sql.NullTime
		)
		if err := rows.Scan(
			&id, &entityID, &agentID, &roomID, &worldID,
			&contentJSON, &embeddingJSON, &uniqueFlag, &metadataJSON, &createdAt,
		); err != nil {
			return nil, err
		}
		m.ID = parseUUID(id)
		m.EntityID = parseUUID(entityID)
		m.AgentID = parseUUID(agentID)
		m.RoomID = parseUUID(roomID)
		m.WorldID = parseUUID(worldID)
		m.Unique = uniqueFlag != 0
		if contentJSON != "" {
			if err := json.Unmarshal([]byte(contentJSON), &m.Content); err != nil {
				return nil, err
			}
		}
		if embeddingJSON != "" {
			if err := json.Unmarshal([]byte(embeddingJSON), &m.Embedding); err != nil {
				return nil, err
			}
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &m.Metadata); err != nil {
				return nil, err
			}
		}
		if createdAt.Valid {
			m.CreatedAt = createdAt.Time
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memories, nil
}

func scanTasks(rows *sql.Rows) ([]core.Task, error) {
	var tasks []core.Task
	for rows.Next() {
		var (
			t                             core.Task
			id, roomID, worldID, entityID string
			tagsJSON, metadataJSON        string
			updatedAt                     sql.NullTime
		)
		if err := rows.Scan(
			&id, &t.Name, &roomID, &worldID, &entityID, &t.Description,
			&tagsJSON, &metadataJSON, &updatedAt,
		); err != nil {
			return nil, err
		}
		t.ID = parseUUID(id)
		t.RoomID = parseUUID(roomID)
		t.WorldID = parseUUID(worldID)
		t.EntityID = parseUUID(entityID)
		if tagsJSON != "" {
			if err := json.Unmarshal([]byte(tagsJSON), &t.Tags); err != nil {
				return nil, err
			}
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &t.Metadata); err != nil {
				return nil, err
			}
		}
		if updatedAt.Valid {
			t.UpdatedAt = updatedAt.Time
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func encodeEmbedding(embedding []float32) (string, error) {
	if len(embedding) == 0 {
		return "", nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			entity_id TEXT,
			agent_id TEXT,
			room_id TEXT,
			world_id TEXT,
			content_json TEXT,
			embedding_json TEXT,
			unique_flag INTEGER NOT NULL DEFAULT 0,
			metadata_json TEXT,
			created_at TIMESTAMP,
			PRIMARY KEY (table_name, id)
		);
		CREATE INDEX IF NOT EXISTS idx_memories_room ON memories(table_name, room_id);
		CREATE INDEX IF NOT EXISTS idx_memories_entity ON memories(table_name, entity_id);

		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			room_id TEXT,
			world_id TEXT,
			entity_id TEXT,
			description TEXT,
			tags_json TEXT,
			metadata_json TEXT,
			updated_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_name ON tasks(name);
		CREATE INDEX IF NOT EXISTS idx_tasks_room ON tasks(room_id);

		CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			value BLOB,
			expires_at TIMESTAMP
		);
	`)
	return err
}
