package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/telos/pkg/core"
)

// eachStore runs the test against every Store implementation.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("inmemory", func(t *testing.T) {
		fn(t, NewInMemoryStore())
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "telos.db"))
		if err != nil {
			t.Fatalf("OpenSQLite failed: %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
}

func newTestMemory(roomID uuid.UUID, text string, embedding []float32) *core.Memory {
	return &core.Memory{
		ID:        uuid.New(),
		EntityID:  uuid.New(),
		AgentID:   uuid.New(),
		RoomID:    roomID,
		Content:   core.Content{Text: text},
		Embedding: embedding,
		Metadata:  core.MemoryMetadata{Type: core.MemoryTypeMessage},
	}
}

func TestMemoryCRUD(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		roomID := uuid.New()

		m := newTestMemory(roomID, "hello there", []float32{0.1, 0.2, 0.3})
		if err := s.CreateMemory(ctx, "messages", m); err != nil {
			t.Fatalf("CreateMemory failed: %v", err)
		}

		got, err := s.GetMemoryByID(ctx, "messages", m.ID)
		if err != nil {
			t.Fatalf("GetMemoryByID failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected memory, got nil")
		}
		if got.Content.Text != "hello there" {
			t.Errorf("expected text 'hello there', got %q", got.Content.Text)
		}
		if len(got.Embedding) != 3 {
			t.Errorf("expected embedding round-trip, got %v", got.Embedding)
		}
		if got.Metadata.Type != core.MemoryTypeMessage {
			t.Errorf("expected metadata type message, got %s", got.Metadata.Type)
		}

		// Table partitions are isolated
		other, err := s.GetMemoryByID(ctx, "facts", m.ID)
		if err != nil {
			t.Fatalf("GetMemoryByID failed: %v", err)
		}
		if other != nil {
			t.Error("expected no memory in a different table")
		}

		if err := s.DeleteMemory(ctx, "messages", m.ID); err != nil {
			t.Fatalf("DeleteMemory failed: %v", err)
		}
		got, err = s.GetMemoryByID(ctx, "messages", m.ID)
		if err != nil {
			t.Fatalf("GetMemoryByID failed: %v", err)
		}
		if got != nil {
			t.Error("expected nil after delete")
		}

		// Deleting again is not an error
		if err := s.DeleteMemory(ctx, "messages", m.ID); err != nil {
			t.Errorf("second delete should be a no-op: %v", err)
		}
	})
}

func TestGetMemoriesFilters(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		roomA := uuid.New()
		roomB := uuid.New()

		base := time.Now().UTC().Add(-time.Hour)
		for i := 0; i < 5; i++ {
			m := newTestMemory(roomA, "a", nil)
			m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			if err := s.CreateMemory(ctx, "messages", m); err != nil {
				t.Fatalf("CreateMemory failed: %v", err)
			}
		}
		mb := newTestMemory(roomB, "b", nil)
		if err := s.CreateMemory(ctx, "messages", mb); err != nil {
			t.Fatalf("CreateMemory failed: %v", err)
		}

		got, err := s.GetMemories(ctx, "messages", core.MemoryQuery{RoomID: roomA})
		if err != nil {
			t.Fatalf("GetMemories failed: %v", err)
		}
		if len(got) != 5 {
			t.Fatalf("expected 5 memories in roomA, got %d", len(got))
		}
		// Newest first
		for i := 1; i < len(got); i++ {
			if got[i].CreatedAt.After(got[i-1].CreatedAt) {
				t.Error("expected newest-first ordering")
			}
		}

		got, err = s.GetMemories(ctx, "messages", core.MemoryQuery{RoomID: roomA, Count: 2})
		if err != nil {
			t.Fatalf("GetMemories failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected count limit 2, got %d", len(got))
		}

		count, err := s.CountMemories(ctx, "messages", roomA, false)
		if err != nil {
			t.Fatalf("CountMemories failed: %v", err)
		}
		if count != 5 {
			t.Errorf("expected count 5, got %d", count)
		}
	})
}

func TestSearchMemories(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		roomID := uuid.New()

		near := newTestMemory(roomID, "near", []float32{1, 0, 0})
		far := newTestMemory(roomID, "far", []float32{0, 1, 0})
		noEmbed := newTestMemory(roomID, "none", nil)
		for _, m := range []*core.Memory{near, far, noEmbed} {
			if err := s.CreateMemory(ctx, "messages", m); err != nil {
				t.Fatalf("CreateMemory failed: %v", err)
			}
		}

		got, err := s.SearchMemories(ctx, "messages", core.MemorySearch{
			Embedding:      []float32{0.9, 0.1, 0},
			RoomID:         roomID,
			MatchThreshold: 0.5,
			Count:          10,
		})
		if err != nil {
			t.Fatalf("SearchMemories failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 match above threshold, got %d", len(got))
		}
		if got[0].Content.Text != "near" {
			t.Errorf("expected nearest match first, got %q", got[0].Content.Text)
		}
		if got[0].Similarity <= 0 {
			t.Errorf("expected similarity score attached, got %f", got[0].Similarity)
		}
	})
}

func TestTaskCRUD(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		roomID := uuid.New()

		task := &core.Task{
			ID:          uuid.New(),
			Name:        "SEND_REMINDER",
			RoomID:      roomID,
			Description: "remind the user",
			Tags:        []string{core.TagQueue, "reminder"},
			Metadata: core.TaskMetadata{
				UpdateInterval: time.Minute,
				Options: []core.TaskOption{
					{Name: "post", Description: "send it"},
					{Name: "cancel"},
				},
			},
		}
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}

		got, err := s.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected task, got nil")
		}
		if got.Name != "SEND_REMINDER" {
			t.Errorf("expected name round-trip, got %s", got.Name)
		}
		if !got.HasTag(core.TagQueue) {
			t.Errorf("expected queue tag, got %v", got.Tags)
		}
		if got.Metadata.UpdateInterval != time.Minute {
			t.Errorf("expected interval round-trip, got %v", got.Metadata.UpdateInterval)
		}
		if _, ok := got.Metadata.Option("post"); !ok {
			t.Errorf("expected options round-trip, got %v", got.Metadata.Options)
		}

		got.Description = "updated"
		if err := s.UpdateTask(ctx, got); err != nil {
			t.Fatalf("UpdateTask failed: %v", err)
		}
		got, _ = s.GetTask(ctx, task.ID)
		if got.Description != "updated" {
			t.Errorf("expected updated description, got %q", got.Description)
		}

		// Updating a missing task is an error
		missing := &core.Task{ID: uuid.New(), Name: "X"}
		if err := s.UpdateTask(ctx, missing); err == nil {
			t.Error("expected error updating missing task")
		}

		if err := s.DeleteTask(ctx, task.ID); err != nil {
			t.Fatalf("DeleteTask failed: %v", err)
		}
		got, err = s.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if got != nil {
			t.Error("expected nil after delete")
		}
	})
}

func TestTasksQuery(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		roomID := uuid.New()

		queued := &core.Task{ID: uuid.New(), Name: "A", RoomID: roomID, Tags: []string{core.TagQueue}}
		pending := &core.Task{ID: uuid.New(), Name: "B", RoomID: roomID, Tags: []string{"AWAITING_CHOICE"}}
		elsewhere := &core.Task{ID: uuid.New(), Name: "A", RoomID: uuid.New(), Tags: []string{core.TagQueue}}
		for _, task := range []*core.Task{queued, pending, elsewhere} {
			if err := s.CreateTask(ctx, task); err != nil {
				t.Fatalf("CreateTask failed: %v", err)
			}
		}

		got, err := s.Tasks(ctx, core.TaskQuery{RoomID: roomID})
		if err != nil {
			t.Fatalf("Tasks failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 tasks in room, got %d", len(got))
		}

		got, err = s.Tasks(ctx, core.TaskQuery{Tags: []string{core.TagQueue}})
		if err != nil {
			t.Fatalf("Tasks failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 queued tasks, got %d", len(got))
		}

		got, err = s.Tasks(ctx, core.TaskQuery{RoomID: roomID, Name: "A", Tags: []string{core.TagQueue}})
		if err != nil {
			t.Fatalf("Tasks failed: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("expected 1 task matching all filters, got %d", len(got))
		}
	})
}

func TestCacheExpiry(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if err := s.SetCache(ctx, "k1", []byte("v1"), time.Time{}); err != nil {
			t.Fatalf("SetCache failed: %v", err)
		}
		value, ok, err := s.GetCache(ctx, "k1")
		if err != nil || !ok {
			t.Fatalf("expected cache hit, ok=%v err=%v", ok, err)
		}
		if string(value) != "v1" {
			t.Errorf("expected v1, got %q", value)
		}

		// Overwrite
		if err := s.SetCache(ctx, "k1", []byte("v2"), time.Time{}); err != nil {
			t.Fatalf("SetCache failed: %v", err)
		}
		value, _, _ = s.GetCache(ctx, "k1")
		if string(value) != "v2" {
			t.Errorf("expected overwrite to v2, got %q", value)
		}

		// Expired entries read as absent
		if err := s.SetCache(ctx, "k2", []byte("old"), time.Now().Add(-time.Second)); err != nil {
			t.Fatalf("SetCache failed: %v", err)
		}
		_, ok, err = s.GetCache(ctx, "k2")
		if err != nil {
			t.Fatalf("GetCache failed: %v", err)
		}
		if ok {
			t.Error("expected expired entry to miss")
		}

		if err := s.DeleteCache(ctx, "k1"); err != nil {
			t.Fatalf("DeleteCache failed: %v", err)
		}
		_, ok, _ = s.GetCache(ctx, "k1")
		if ok {
			t.Error("expected miss after delete")
		}
	})
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("CosineSimilarity = %f, want %f", got, tt.want)
			}
		})
	}
}
