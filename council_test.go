package council_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/council"
	"github.com/ashita-ai/council/internal/testutil"
)

func TestEngine_RunGameThenIngestOutcome(t *testing.T) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	runID := "test-run-" + t.Name()
	engine, err := council.New(
		council.WithDatabaseURL(tc.DSN),
		council.WithLogger(testutil.TestLogger()),
		council.WithRunID(runID),
	)
	require.NoError(t, err)
	require.NotNil(t, engine)
	defer engine.Shutdown(ctx)

	game := council.Game{
		GameID:   "2026_01_BUF_NE",
		Season:   2026,
		Week:     1,
		Date:     time.Date(2026, 9, 10, 20, 20, 0, 0, time.UTC),
		HomeTeam: "NE",
		AwayTeam: "BUF",
		Venue:    "Gillette Stadium",
		Status:   council.GameScheduled,
	}

	bundle, err := engine.RunGame(ctx, game)
	require.NoError(t, err)
	assert.Equal(t, runID, bundle.RunID)
	assert.Equal(t, game.GameID, bundle.GameID)
	assert.NotEmpty(t, bundle.Categories, "consensus should contain at least one category")
	assert.NotEmpty(t, bundle.ContributingExperts, "consensus should credit at least one contributing expert")

	result, err := engine.IngestOutcome(ctx, runID, game.GameID, council.FinalScore{
		HomeScore: 27,
		AwayScore: 20,
	})
	require.NoError(t, err)
	assert.Greater(t, result.SettledAssertions, 0, "settling a graded game should settle at least one assertion")
	assert.NotEmpty(t, result.UpdatedExperts)
}

func TestEngine_IngestOutcomeWithoutRunGame(t *testing.T) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	runID := "test-run-" + t.Name()
	engine, err := council.New(
		council.WithDatabaseURL(tc.DSN),
		council.WithLogger(testutil.TestLogger()),
		council.WithRunID(runID),
	)
	require.NoError(t, err)
	defer engine.Shutdown(ctx)

	// The game was never run, so it has no row in `games` — IngestOutcome
	// looks the game up by (run_id, game_id) to resolve its week and fails
	// when that lookup misses.
	_, err = engine.IngestOutcome(ctx, runID, "2026_02_KC_DEN", council.FinalScore{
		HomeScore: 24,
		AwayScore: 17,
	})
	require.Error(t, err)
}
