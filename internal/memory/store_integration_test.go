package memory

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/council/internal/model"
	"github.com/ashita-ai/council/internal/storage"
	"github.com/ashita-ai/council/internal/testutil"
)

const testRunID = "memory-store-test-run"

var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()
	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	logger := testutil.TestLogger()
	db, err := tc.NewTestDB(ctx, logger)
	if err != nil {
		logger.Error("failed to set up test database", "error", err)
		os.Exit(1)
	}
	testDB = db

	if _, err := testDB.Pool().Exec(ctx,
		`INSERT INTO run_playbooks (
			run_id, council_size, rolling_window_weeks, mode, k_desired,
			repair_max_iters, per_expert_deadline_ms, tool_max_calls, tool_max_time_ms
		 ) VALUES ($1, 15, 6, 'live', 10, 2, 8000, 4, 5000)
		 ON CONFLICT (run_id) DO NOTHING`,
		testRunID,
	); err != nil {
		logger.Error("failed to seed run_playbooks", "error", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func vectorOf(seed float32) pgvector.Vector {
	v := make([]float32, model.EmbeddingDims)
	v[0] = seed
	return pgvector.NewVector(v)
}

func insertTestMemory(t *testing.T, expertID, team string, ageDays float64, seed float32) model.EpisodicMemory {
	t.Helper()
	emb := vectorOf(seed)
	m := model.EpisodicMemory{
		RunID:             testRunID,
		ExpertID:          expertID,
		GameID:            "2026_01_BUF_NE",
		Type:              model.MemoryReasoning,
		Content:           "test memory",
		HomeTeam:          team,
		AwayTeam:          "OPP",
		Season:            2026,
		Week:              1,
		GameDate:          time.Now(),
		CreatedAt:         time.Now().Add(-time.Duration(ageDays*24) * time.Hour),
		CombinedEmbedding: &emb,
		MemoryStrength:    1.0,
		DecayRate:         0.05,
	}
	inserted, err := testDB.InsertMemory(context.Background(), m)
	require.NoError(t, err)
	return inserted
}

func TestStore_Retrieve_PgvectorFallback_NoIndex(t *testing.T) {
	ctx := context.Background()
	insertTestMemory(t, "the-analyst", "BUF", 1, 1.0)
	insertTestMemory(t, "the-analyst", "BUF", 2, 0.9)

	s := NewStore(testDB, nil, testutil.TestLogger())
	results, degraded, err := s.Retrieve(ctx, testRunID, vectorOf(1.0), Query{ExpertID: "the-analyst"})

	require.NoError(t, err)
	assert.True(t, degraded, "nil index should always report degraded retrieval")
	assert.NotEmpty(t, results)
}

func TestStore_Retrieve_FilterRelaxationLadder(t *testing.T) {
	ctx := context.Background()
	// Seed memories for a different expert so the exact filter on "the-scout"
	// misses every rung that still constrains by expert_id, forcing the
	// ladder all the way down to the final, unfiltered rung.
	for i := 0; i < KMin; i++ {
		insertTestMemory(t, "the-grinder", "KC", float64(i), float32(i)+10)
	}

	s := NewStore(testDB, nil, testutil.TestLogger())
	results, degraded, err := s.Retrieve(ctx, testRunID, vectorOf(10.0), Query{ExpertID: "the-scout"})

	require.NoError(t, err)
	assert.True(t, degraded)
	// The last rung drops the expert_id filter entirely, so it surfaces the
	// seeded the-grinder memories once nothing else matches.
	if assert.NotEmpty(t, results) {
		assert.Contains(t, results[0].RelaxedFilters, "team")
	}
}

func TestStore_Retrieve_ReturnsAtMostKMax(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < KMax+10; i++ {
		insertTestMemory(t, "the-quant", "DEN", float64(i)*0.1, float32(i)+100)
	}

	s := NewStore(testDB, nil, testutil.TestLogger())
	results, _, err := s.Retrieve(ctx, testRunID, vectorOf(100.0), Query{ExpertID: "the-quant"})

	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), KMax)
}
