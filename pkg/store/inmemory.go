package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/telos/pkg/core"
)

// InMemoryStore is a map-backed Store for tests and ephemeral agents.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories map[string]map[uuid.UUID]core.Memory // table -> id -> memory
	tasks    map[uuid.UUID]core.Task
	cache    map[string]cacheEntry
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		memories: make(map[string]map[uuid.UUID]core.Memory),
		tasks:    make(map[uuid.UUID]core.Task),
		cache:    make(map[string]cacheEntry),
	}
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) CreateMemory(ctx context.Context, table string, memory *core.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.memories[table] == nil {
		s.memories[table] = make(map[uuid.UUID]core.Memory)
	}
	m := *memory
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.memories[table][m.ID] = m
	return nil
}

func (s *InMemoryStore) GetMemoryByID(ctx context.Context, table string, id uuid.UUID) (*core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memories[table][id]
	if !ok {
		return nil, nil
	}
	out := m
	return &out, nil
}

func (s *InMemoryStore) GetMemories(ctx context.Context, table string, query core.MemoryQuery) ([]core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Memory
	for _, m := range s.memories[table] {
		if query.RoomID != uuid.Nil && m.RoomID != query.RoomID {
			continue
		}
		if query.EntityID != uuid.Nil && m.EntityID != query.EntityID {
			continue
		}
		if query.Unique && !m.Unique {
			continue
		}
		if !query.Start.IsZero() && m.CreatedAt.Before(query.Start) {
			continue
		}
		if !query.End.IsZero() && m.CreatedAt.After(query.End) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if query.Count > 0 && len(out) > query.Count {
		out = out[:query.Count]
	}
	return out, nil
}

func (s *InMemoryStore) SearchMemories(ctx context.Context, table string, search core.MemorySearch) ([]core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []core.Memory
	for _, m := range s.memories[table] {
		if len(m.Embedding) == 0 {
			continue
		}
		if search.RoomID != uuid.Nil && m.RoomID != search.RoomID {
			continue
		}
		if search.Unique && !m.Unique {
			continue
		}
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

func (s *InMemoryStore) MemoriesWithEmbeddings(ctx context.Context, table string, limit int) ([]core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Memory
	for _, m := range s.memories[table] {
		if len(m.Embedding) == 0 {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) DeleteMemory(ctx context.Context, table string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.memories[table], id)
	return nil
}

func (s *InMemoryStore) CountMemories(ctx context.Context, table string, roomID uuid.UUID, unique bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.memories[table] {
		if roomID != uuid.Nil && m.RoomID != roomID {
			continue
		}
		if unique && !m.Unique {
			continue
		}
		count++
	}
	return count, nil
}

func (s *InMemoryStore) CreateTask(ctx context.Context, task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *task
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *InMemoryStore) GetTask(ctx context.Context, id uuid.UUID) (*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	out := t
	return &out, nil
}

func (s *InMemoryStore) Tasks(ctx context.Context, query core.TaskQuery) ([]core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Task
	for _, t := range s.tasks {
		if query.RoomID != uuid.Nil && t.RoomID != query.RoomID {
			continue
		}
		if query.Name != "" && t.Name != query.Name {
			continue
		}
		hasAll := true
		for _, tag := range query.Tags {
			if !t.HasTag(tag) {
				hasAll = false
				break
			}
		}
		if !hasAll {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) UpdateTask(ctx context.Context, task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		return errors.New("task not found")
	}
	t := *task
	t.UpdatedAt = time.Now().UTC()
	s.tasks[t.ID] = t
	return nil
}

func (s *InMemoryStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, id)
	return nil
}

func (s *InMemoryStore) GetCache(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *InMemoryStore) SetCache(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[key] = cacheEntry{value: value, expiresAt: expiresAt}
	return nil
}

func (s *InMemoryStore) DeleteCache(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, key)
	return nil
}
