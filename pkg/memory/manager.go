package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/store"
)

const (
	// uniqueThreshold is the similarity above which a new unique memory is
	// considered a duplicate of an existing one.
	uniqueThreshold = 0.95

	// embedCacheTTL bounds how long computed embeddings are reused.
	embedCacheTTL = 24 * time.Hour

	// cacheScanLimit bounds the fuzzy scan behind GetCachedEmbeddings.
	cacheScanLimit = 256
)

// Manager is the per-table memory facade. It embeds content on write when
// an embedder is configured, deduplicates unique writes, and attaches
// similarity scores on search. An optional vector store accelerates
// searches; without one the storage collaborator scans embeddings itself.
type Manager struct {
	table    string
	store    store.Store
	embedder Embedder
	vectors  VectorStore
	logger   *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithEmbedder sets the embedder used on write and search.
func WithEmbedder(e Embedder) ManagerOption {
	return func(m *Manager) { m.embedder = e }
}

// WithVectorStore mirrors embeddings into an external vector index.
func WithVectorStore(v VectorStore) ManagerOption {
	return func(m *Manager) { m.vectors = v }
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a memory facade over the given table partition.
func NewManager(table string, s store.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		table:  table,
		store:  s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Table returns the logical table this manager fronts.
func (m *Manager) Table() string {
	return m.table
}

// CreateMemory stores a memory, embedding its text first when an embedder
// is configured. With unique set, a near-duplicate already in the table
// short-circuits the write and returns the existing ID.
func (m *Manager) CreateMemory(ctx context.Context, memory *core.Memory, unique bool) (uuid.UUID, error) {
	if memory == nil {
		return uuid.Nil, errors.New(errors.CodeInvalidInput, "memory is nil", nil)
	}
	if memory.ID == uuid.Nil {
		memory.ID = uuid.New()
	}
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now().UTC()
	}
	memory.Unique = unique

	if len(memory.Embedding) == 0 && m.embedder != nil && memory.Content.Text != "" {
		embedding, err := m.embed(ctx, memory.Content.Text)
		if err != nil {
			return uuid.Nil, errors.New(errors.CodeModelError, "embed memory content", err).
				WithContext("table", m.table)
		}
		memory.Embedding = embedding
	}

	if unique && len(memory.Embedding) > 0 {
		dupes, err := m.SearchMemories(ctx, core.MemorySearch{
			Embedding:      memory.Embedding,
			RoomID:         memory.RoomID,
			MatchThreshold: uniqueThreshold,
			Count:          1,
			Unique:         true,
		})
		if err != nil {
			return uuid.Nil, err
		}
		if len(dupes) > 0 {
			m.logger.Debug("memory.create.duplicate",
				"table", m.table, "existing_id", dupes[0].ID)
			return dupes[0].ID, nil
		}
	}

	if err := m.store.CreateMemory(ctx, m.table, memory); err != nil {
		return uuid.Nil, errors.New(errors.CodeStoreError, "create memory", err).
			WithContext("table", m.table)
	}

	if m.vectors != nil && len(memory.Embedding) > 0 {
		point := Point{
			ID:     memory.ID.String(),
			Vector: memory.Embedding,
			Payload: map[string]interface{}{
				"room_id": memory.RoomID.String(),
			},
		}
		if err := m.vectors.Upsert(ctx, m.table, []Point{point}); err != nil {
			// The store remains the source of truth; a missing mirror only
			// degrades search.
			m.logger.Warn("memory.vector.upsert.error",
				"table", m.table, "id", memory.ID, "error", err)
		}
	}

	return memory.ID, nil
}

// GetMemoryByID returns the memory with the given id, or nil when absent.
func (m *Manager) GetMemoryByID(ctx context.Context, id uuid.UUID) (*core.Memory, error) {
	memory, err := m.store.GetMemoryByID(ctx, m.table, id)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "get memory", err).
			WithContext("table", m.table)
	}
	return memory, nil
}

// GetMemories returns memories matching the query, newest first.
func (m *Manager) GetMemories(ctx context.Context, query core.MemoryQuery) ([]core.Memory, error) {
	memories, err := m.store.GetMemories(ctx, m.table, query)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "get memories", err).
			WithContext("table", m.table)
	}
	return memories, nil
}

// SearchMemories returns memories ranked by embedding similarity. The
// vector store serves the search when configured; otherwise the storage
// collaborator scans its own embeddings.
func (m *Manager) SearchMemories(ctx context.Context, search core.MemorySearch) ([]core.Memory, error) {
	if m.vectors == nil {
		memories, err := m.store.SearchMemories(ctx, m.table, search)
		if err != nil {
			return nil, errors.New(errors.CodeStoreError, "search memories", err).
				WithContext("table", m.table)
		}
		return memories, nil
	}

	limit := search.Count
	if limit <= 0 {
		limit = 10
	}
	results, err := m.vectors.Search(ctx, m.table, search.Embedding, limit, search.MatchThreshold)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "vector search", err).
			WithContext("table", m.table)
	}

	var memories []core.Memory
	for _, r := range results {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			continue
		}
		memory, err := m.store.GetMemoryByID(ctx, m.table, id)
		if err != nil {
			return nil, errors.New(errors.CodeStoreError, "hydrate search result", err).
				WithContext("table", m.table)
		}
		if memory == nil {
			continue
		}
		if search.RoomID != uuid.Nil && memory.RoomID != search.RoomID {
			continue
		}
		if search.Unique && !memory.Unique {
			continue
		}
		memory.Similarity = r.Score
		memories = append(memories, *memory)
	}
	return memories, nil
}

// GetCachedEmbeddings returns previously computed embeddings whose source
// text approximately matches the query, scored by normalized edit
// distance. Best matches come first.
func (m *Manager) GetCachedEmbeddings(ctx context.Context, text string) ([]core.EmbeddingCacheHit, error) {
	if text == "" {
		return nil, nil
	}
	memories, err := m.store.MemoriesWithEmbeddings(ctx, m.table, cacheScanLimit)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "scan cached embeddings", err).
			WithContext("table", m.table)
	}

	var hits []core.EmbeddingCacheHit
	for _, memory := range memories {
		if memory.Content.Text == "" {
			continue
		}
		hits = append(hits, core.EmbeddingCacheHit{
			MemoryID:  memory.ID,
			Text:      memory.Content.Text,
			Embedding: memory.Embedding,
			Score:     levenshteinScore(text, memory.Content.Text),
		})
	}
	sortHits(hits)
	return hits, nil
}

// DeleteMemory removes a memory from the store and the vector mirror.
func (m *Manager) DeleteMemory(ctx context.Context, id uuid.UUID) error {
	if err := m.store.DeleteMemory(ctx, m.table, id); err != nil {
		return errors.New(errors.CodeStoreError, "delete memory", err).
			WithContext("table", m.table)
	}
	if m.vectors != nil {
		if err := m.vectors.Delete(ctx, m.table, []string{id.String()}); err != nil {
			m.logger.Warn("memory.vector.delete.error",
				"table", m.table, "id", id, "error", err)
		}
	}
	return nil
}

// CountMemories counts memories in a room, optionally unique ones only.
func (m *Manager) CountMemories(ctx context.Context, roomID uuid.UUID, unique bool) (int, error) {
	count, err := m.store.CountMemories(ctx, m.table, roomID, unique)
	if err != nil {
		return 0, errors.New(errors.CodeStoreError, "count memories", err).
			WithContext("table", m.table)
	}
	return count, nil
}

// embed computes the embedding for text, reusing the cached vector when
// the same text was embedded recently.
func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	key := embedCacheKey(text)

	if cached, ok, err := m.store.GetCache(ctx, key); err == nil && ok {
		var embedding []float32
		if err := json.Unmarshal(cached, &embedding); err == nil && len(embedding) > 0 {
			return embedding, nil
		}
	}

	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if len(embedding) == 0 {
		return embedding, nil
	}

	if data, err := json.Marshal(embedding); err == nil {
		if err := m.store.SetCache(ctx, key, data, time.Now().Add(embedCacheTTL)); err != nil {
			m.logger.Debug("memory.embed.cache.error", "error", err)
		}
	}
	return embedding, nil
}

func embedCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embed:%s", hex.EncodeToString(sum[:]))
}

// levenshteinScore normalizes edit distance into a similarity in [0, 1].
func levenshteinScore(a, b string) float32 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := 1 - float32(dist)/float32(longest)
	if score < 0 {
		return 0
	}
	return score
}

func sortHits(hits []core.EmbeddingCacheHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}
