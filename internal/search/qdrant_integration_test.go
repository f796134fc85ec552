package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestQdrantIndex creates a QdrantIndex connected to a local address.
// The connection may succeed (gRPC lazy connects) even if no server is running,
// but actual RPCs will fail. This is sufficient for testing early-return paths,
// error handling, and caching logic.
func newTestQdrantIndex(t *testing.T) *QdrantIndex {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(nil, nil))
	idx, err := NewQdrantIndex(QdrantConfig{
		URL:        "http://localhost:16334", // Non-standard port, no server running.
		Collection: "test_collection",
		Dims:       1536,
	}, logger)
	require.NoError(t, err, "NewQdrantIndex should succeed (gRPC is lazy-connect)")
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestNewQdrantIndex_Valid(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(nil, nil))

	idx, err := NewQdrantIndex(QdrantConfig{
		URL:        "http://localhost:6333",
		Collection: "episodic_memories",
		Dims:       1536,
	}, logger)

	require.NoError(t, err)
	require.NotNil(t, idx)
	assert.Equal(t, "episodic_memories", idx.collection)
	assert.Equal(t, uint64(1536), idx.dims)
	assert.NotNil(t, idx.client)

	_ = idx.Close()
}

func TestNewQdrantIndex_InvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(nil, nil))

	_, err := NewQdrantIndex(QdrantConfig{
		URL:        "",
		Collection: "episodic_memories",
		Dims:       1536,
	}, logger)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid qdrant URL")
}

func TestNewQdrantIndex_HTTPSConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(nil, nil))

	idx, err := NewQdrantIndex(QdrantConfig{
		URL:        "https://qdrant.example.com:6333",
		APIKey:     "test-api-key",
		Collection: "my_collection",
		Dims:       768,
	}, logger)

	// This may fail if the qdrant client does TLS handshake eagerly,
	// but typically gRPC connects lazily.
	if err != nil {
		// Acceptable: some gRPC dial options cause immediate failure for TLS.
		assert.Contains(t, err.Error(), "connect to qdrant")
		return
	}

	require.NotNil(t, idx)
	assert.Equal(t, "my_collection", idx.collection)
	assert.Equal(t, uint64(768), idx.dims)

	_ = idx.Close()
}

func TestQdrantUpsert_EmptyPoints(t *testing.T) {
	idx := newTestQdrantIndex(t)

	// Upsert with empty points should return nil immediately without calling Qdrant.
	err := idx.Upsert(context.Background(), nil)
	assert.NoError(t, err)

	err = idx.Upsert(context.Background(), []MemoryPoint{})
	assert.NoError(t, err)
}

func TestQdrantDeleteByIDs_EmptyIDs(t *testing.T) {
	idx := newTestQdrantIndex(t)

	// DeleteByIDs with empty IDs should return nil immediately.
	err := idx.DeleteByIDs(context.Background(), nil)
	assert.NoError(t, err)

	err = idx.DeleteByIDs(context.Background(), []uuid.UUID{})
	assert.NoError(t, err)
}

func TestQdrantHealthy_CacheTiming(t *testing.T) {
	idx := newTestQdrantIndex(t)

	// Seed a cached healthy result with a recent timestamp.
	idx.healthMu.Lock()
	idx.lastErr = nil
	idx.lastCheck = time.Now()
	idx.healthMu.Unlock()

	// The fast path in Healthy checks time.Since < 5s, so it should return the
	// cached nil immediately without making a gRPC call that would otherwise fail.
	err := idx.Healthy(context.Background())
	assert.Nil(t, err, "cached healthy result should be returned from fast path")

	// Now seed a cached error with a recent timestamp.
	idx.healthMu.Lock()
	idx.lastErr = assert.AnError
	idx.lastCheck = time.Now()
	idx.healthMu.Unlock()

	err = idx.Healthy(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestQdrantHealthy_ExpiredCache(t *testing.T) {
	idx := newTestQdrantIndex(t)

	// Seed a cached healthy result with an old timestamp (>5s ago).
	idx.healthMu.Lock()
	idx.lastErr = nil
	idx.lastCheck = time.Now().Add(-10 * time.Second)
	idx.healthMu.Unlock()

	// With expired cache, Healthy should make a real gRPC call, which will fail
	// because there's no Qdrant server running.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := idx.Healthy(ctx)
	require.Error(t, err, "expired cache should trigger real health check which fails")
	assert.Contains(t, err.Error(), "qdrant unhealthy")
}

func TestQdrantClose(t *testing.T) {
	idx := newTestQdrantIndex(t)

	// Close should not panic. The cleanup in newTestQdrantIndex will also call Close,
	// but double-close on gRPC connections is safe.
	err := idx.Close()
	assert.NoError(t, err)
}

func TestQdrantSearch_FailsWithoutServer(t *testing.T) {
	idx := newTestQdrantIndex(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	embedding := make([]float32, 1536)
	results, err := idx.Search(ctx, "run-1", embedding, MemoryFilters{}, 10)

	require.Error(t, err, "search should fail without a running Qdrant server")
	assert.Contains(t, err.Error(), "qdrant query")
	assert.Nil(t, results)
}

func TestQdrantUpsert_FailsWithoutServer(t *testing.T) {
	idx := newTestQdrantIndex(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	points := []MemoryPoint{
		{
			MemoryID:   uuid.New(),
			RunID:      "run-1",
			ExpertID:   "the-analyst",
			GameID:     "2026_01_NE_BUF",
			HomeTeam:   "BUF",
			AwayTeam:   "NE",
			MemoryType: "reasoning",
			CreatedAt:  time.Now(),
			Embedding:  make([]float32, 1536),
		},
	}

	err := idx.Upsert(ctx, points)
	require.Error(t, err, "upsert should fail without a running Qdrant server")
	assert.Contains(t, err.Error(), "qdrant upsert")
}

func TestQdrantDeleteByIDs_FailsWithoutServer(t *testing.T) {
	idx := newTestQdrantIndex(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := idx.DeleteByIDs(ctx, []uuid.UUID{uuid.New()})
	require.Error(t, err, "delete should fail without a running Qdrant server")
	assert.Contains(t, err.Error(), "qdrant delete")
}

func TestQdrantDeleteByRun_FailsWithoutServer(t *testing.T) {
	idx := newTestQdrantIndex(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := idx.DeleteByRun(ctx, "run-1")
	require.Error(t, err, "delete by run should fail without a running Qdrant server")
	assert.Contains(t, err.Error(), "qdrant delete by run")
}

func TestQdrantEnsureCollection_FailsWithoutServer(t *testing.T) {
	idx := newTestQdrantIndex(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := idx.EnsureCollection(ctx)
	require.Error(t, err, "ensure collection should fail without a running Qdrant server")
	assert.Contains(t, err.Error(), "check collection exists")
}

func TestQdrantUpsert_PointPayloadFields(t *testing.T) {
	// Verify that Upsert exercises the payload-building code path for both a
	// fully populated point and a minimal one (even though both fail, since
	// no server is running).
	idx := newTestQdrantIndex(t)

	fullPoint := MemoryPoint{
		MemoryID:   uuid.New(),
		RunID:      "run-1",
		ExpertID:   "the-contrarian",
		GameID:     "2026_02_KC_DEN",
		HomeTeam:   "DEN",
		AwayTeam:   "KC",
		MemoryType: "outcome",
		CreatedAt:  time.Now(),
		Embedding:  make([]float32, 1536),
	}

	minimalPoint := MemoryPoint{
		MemoryID:  uuid.New(),
		RunID:     "run-1",
		CreatedAt: time.Now(),
		Embedding: make([]float32, 1536),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := idx.Upsert(ctx, []MemoryPoint{fullPoint, minimalPoint})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qdrant upsert 2 points")
}

func TestQdrantSearch_WithFilters(t *testing.T) {
	// Test that Search constructs the correct filter conditions. The search
	// will fail (no server), but we exercise the filter-building code paths.
	idx := newTestQdrantIndex(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	embedding := make([]float32, 1536)

	t.Run("expert_id filter", func(t *testing.T) {
		filters := MemoryFilters{ExpertID: "the-analyst"}
		_, err := idx.Search(ctx, "run-1", embedding, filters, 10)
		require.Error(t, err)
	})

	t.Run("team filter", func(t *testing.T) {
		team := "BUF"
		filters := MemoryFilters{Team: &team}
		_, err := idx.Search(ctx, "run-1", embedding, filters, 10)
		require.Error(t, err)
	})

	t.Run("recency window filter", func(t *testing.T) {
		days := 14
		filters := MemoryFilters{RecencyWindowDays: &days}
		_, err := idx.Search(ctx, "run-1", embedding, filters, 10)
		require.Error(t, err)
	})

	t.Run("all filters combined", func(t *testing.T) {
		team := "KC"
		days := 30
		filters := MemoryFilters{ExpertID: "the-contrarian", Team: &team, RecencyWindowDays: &days}
		_, err := idx.Search(ctx, "run-1", embedding, filters, 10)
		require.Error(t, err)
	})
}

func TestQdrantHealthy_Concurrent(t *testing.T) {
	idx := newTestQdrantIndex(t)

	// Force an expired cache so every goroutine attempts a real health check.
	idx.healthMu.Lock()
	idx.lastCheck = time.Now().Add(-10 * time.Second)
	idx.healthMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, 10)
	for range 10 {
		go func() {
			errs <- idx.Healthy(ctx)
		}()
	}

	for range 10 {
		err := <-errs
		require.Error(t, err)
		assert.Contains(t, err.Error(), "qdrant unhealthy")
	}
}

func TestParseQdrantURL_InvalidPort(t *testing.T) {
	// Go's url.Parse may treat "notaport" as part of the host rather than
	// a separate port, depending on the URL format. Either error path is acceptable.
	_, _, _, err := parseQdrantURL("http://localhost:notaport")
	require.Error(t, err)
	assert.True(t,
		assert.ObjectsAreEqual("search: invalid port in qdrant URL: \"notaport\"", err.Error()) ||
			assert.ObjectsAreEqual("search: invalid qdrant URL: \"http://localhost:notaport\"", err.Error()),
		"expected either 'invalid port' or 'invalid qdrant URL' error, got: %s", err.Error(),
	)
}
