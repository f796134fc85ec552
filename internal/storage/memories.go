package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/ashita-ai/council/internal/model"
)

// ErrMemoryDuplicate indicates the natural key was already present; callers
// treat this as a successful no-op rather than an error (§4.3's idempotency
// contract for repeated memory writes).
var ErrMemoryDuplicate = errors.New("storage: memory already exists for natural key")

// InsertMemory stores one episodic memory. The natural key
// (run_id, expert_id, game_id, type, created_at) makes re-ingestion of the
// same memory a no-op rather than a duplicate row.
func (db *DB) InsertMemory(ctx context.Context, m model.EpisodicMemory) (model.EpisodicMemory, error) {
	if m.MemoryID == uuid.Nil {
		m.MemoryID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return model.EpisodicMemory{}, fmt.Errorf("storage: marshal memory metadata: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO episodic_memories (
		     memory_id, run_id, expert_id, game_id, type, content,
		     home_team, away_team, season, week, game_date, metadata,
		     game_context_embedding, prediction_embedding, outcome_embedding, combined_embedding,
		     memory_strength, emotional_state, vividness, decay_rate, created_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		 ON CONFLICT (run_id, expert_id, game_id, type, created_at) DO NOTHING`,
		m.MemoryID, m.RunID, m.ExpertID, m.GameID, string(m.Type), m.Content,
		m.HomeTeam, m.AwayTeam, m.Season, m.Week, m.GameDate, metaJSON,
		m.GameContextEmbedding, m.PredictionEmbedding, m.OutcomeEmbedding, m.CombinedEmbedding,
		m.MemoryStrength, m.EmotionalState, m.Vividness, m.DecayRate, m.CreatedAt,
	)
	if err != nil {
		return model.EpisodicMemory{}, fmt.Errorf("storage: insert memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.EpisodicMemory{}, fmt.Errorf("storage: insert memory %s: %w", m.NaturalKey(), ErrMemoryDuplicate)
	}
	return m, nil
}

// MemoryFilter narrows candidate retrieval before similarity ranking. Each
// non-nil field is one rung of the filter-relaxation ladder callers climb
// when fewer than the desired K candidates come back.
type MemoryFilter struct {
	ExpertID          string
	Team              *string // either home or away team in the matchup
	RecencyWindowDays *int
	Limit             int
}

// CandidateMemory pairs a raw row with the cosine similarity pgvector
// computed against the query embedding, before decay-weighted ranking
// happens in internal/memory.
type CandidateMemory struct {
	Memory     model.EpisodicMemory
	Similarity float64 // 1 - cosine distance
}

// ListCandidateMemories returns memories ordered by embedding similarity to
// queryEmbedding, honoring the given filter. It does not apply temporal
// decay or the [10,20] K bound — that ranking happens in internal/memory,
// which calls this once per rung of the filter-relaxation ladder.
func (db *DB) ListCandidateMemories(ctx context.Context, runID string, f MemoryFilter, queryEmbedding pgvector.Vector) ([]CandidateMemory, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT memory_id, expert_id, game_id, type, content,
	                  home_team, away_team, season, week, game_date, metadata,
	                  game_context_embedding, prediction_embedding, outcome_embedding, combined_embedding,
	                  memory_strength, emotional_state, vividness, decay_rate, created_at,
	                  combined_embedding <=> $1 AS distance
	           FROM episodic_memories
	           WHERE run_id = $2 AND combined_embedding IS NOT NULL`
	args := []any{queryEmbedding, runID}
	argN := 3

	if f.ExpertID != "" {
		query += fmt.Sprintf(" AND expert_id = $%d", argN)
		args = append(args, f.ExpertID)
		argN++
	}
	if f.Team != nil {
		query += fmt.Sprintf(" AND (home_team = $%d OR away_team = $%d)", argN, argN)
		args = append(args, *f.Team)
		argN++
	}
	if f.RecencyWindowDays != nil {
		query += fmt.Sprintf(" AND created_at >= now() - ($%d * interval '1 day')", argN)
		args = append(args, *f.RecencyWindowDays)
		argN++
	}
	query += fmt.Sprintf(" ORDER BY distance ASC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list candidate memories: %w", err)
	}
	defer rows.Close()

	var out []CandidateMemory
	for rows.Next() {
		var (
			m        model.EpisodicMemory
			typ      string
			metaJSON []byte
			distance float64
		)
		if err := rows.Scan(
			&m.MemoryID, &m.ExpertID, &m.GameID, &typ, &m.Content,
			&m.HomeTeam, &m.AwayTeam, &m.Season, &m.Week, &m.GameDate, &metaJSON,
			&m.GameContextEmbedding, &m.PredictionEmbedding, &m.OutcomeEmbedding, &m.CombinedEmbedding,
			&m.MemoryStrength, &m.EmotionalState, &m.Vividness, &m.DecayRate, &m.CreatedAt,
			&distance,
		); err != nil {
			return nil, fmt.Errorf("storage: scan candidate memory: %w", err)
		}
		m.RunID = runID
		m.Type = model.MemoryType(typ)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &m.Metadata); err != nil {
				return nil, fmt.Errorf("storage: unmarshal memory metadata: %w", err)
			}
		}
		out = append(out, CandidateMemory{Memory: m, Similarity: 1 - distance})
	}
	return out, rows.Err()
}

// GetMemoriesByIDs hydrates full episodic memories for a set of memory IDs,
// the step the ANN path needs after Qdrant returns IDs and raw scores.
func (db *DB) GetMemoriesByIDs(ctx context.Context, runID string, ids []uuid.UUID) (map[uuid.UUID]model.EpisodicMemory, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]model.EpisodicMemory{}, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT memory_id, expert_id, game_id, type, content,
		        home_team, away_team, season, week, game_date, metadata,
		        game_context_embedding, prediction_embedding, outcome_embedding, combined_embedding,
		        memory_strength, emotional_state, vividness, decay_rate, created_at
		 FROM episodic_memories WHERE run_id = $1 AND memory_id = ANY($2)`,
		runID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get memories by ids: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]model.EpisodicMemory, len(ids))
	for rows.Next() {
		var (
			m        model.EpisodicMemory
			typ      string
			metaJSON []byte
		)
		if err := rows.Scan(
			&m.MemoryID, &m.ExpertID, &m.GameID, &typ, &m.Content,
			&m.HomeTeam, &m.AwayTeam, &m.Season, &m.Week, &m.GameDate, &metaJSON,
			&m.GameContextEmbedding, &m.PredictionEmbedding, &m.OutcomeEmbedding, &m.CombinedEmbedding,
			&m.MemoryStrength, &m.EmotionalState, &m.Vividness, &m.DecayRate, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan memory by id: %w", err)
		}
		m.RunID = runID
		m.Type = model.MemoryType(typ)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &m.Metadata); err != nil {
				return nil, fmt.Errorf("storage: unmarshal memory metadata: %w", err)
			}
		}
		out[m.MemoryID] = m
	}
	return out, rows.Err()
}

// UpsertTeamKnowledge stores an expert's accumulated belief about one team.
func (db *DB) UpsertTeamKnowledge(ctx context.Context, k model.TeamKnowledge) error {
	k.UpdatedAt = time.Now().UTC()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO team_knowledge (
		     run_id, expert_id, team_id, recent_performance, trends,
		     confidence_level, accuracy_rate, knowledge_embedding, updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (run_id, expert_id, team_id) DO UPDATE SET
		     recent_performance = EXCLUDED.recent_performance,
		     trends = EXCLUDED.trends,
		     confidence_level = EXCLUDED.confidence_level,
		     accuracy_rate = EXCLUDED.accuracy_rate,
		     knowledge_embedding = EXCLUDED.knowledge_embedding,
		     updated_at = EXCLUDED.updated_at`,
		k.RunID, k.ExpertID, k.TeamID, k.RecentPerformance, k.Trends,
		k.ConfidenceLevel, k.AccuracyRate, k.KnowledgeEmbedding, k.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert team knowledge: %w", err)
	}
	return nil
}

// GetTeamKnowledge retrieves per-(run, expert, team) aggregate knowledge.
func (db *DB) GetTeamKnowledge(ctx context.Context, runID, expertID, teamID string) (model.TeamKnowledge, error) {
	var k model.TeamKnowledge
	err := db.pool.QueryRow(ctx,
		`SELECT run_id, expert_id, team_id, recent_performance, trends,
		        confidence_level, accuracy_rate, knowledge_embedding, updated_at
		 FROM team_knowledge WHERE run_id = $1 AND expert_id = $2 AND team_id = $3`,
		runID, expertID, teamID,
	).Scan(
		&k.RunID, &k.ExpertID, &k.TeamID, &k.RecentPerformance, &k.Trends,
		&k.ConfidenceLevel, &k.AccuracyRate, &k.KnowledgeEmbedding, &k.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TeamKnowledge{}, fmt.Errorf("storage: team knowledge %s/%s: %w", expertID, teamID, ErrNotFound)
		}
		return model.TeamKnowledge{}, fmt.Errorf("storage: get team knowledge: %w", err)
	}
	return k, nil
}

// UpsertMatchupMemory stores or refreshes the aggregated, role-agnostic
// matchup memory. matchup_key is a generated column derived from the sorted
// (home_team, away_team) pair, so a FACED edge aggregates regardless of
// which team was home in a given meeting.
func (db *DB) UpsertMatchupMemory(ctx context.Context, m model.MatchupMemory) error {
	m.UpdatedAt = time.Now().UTC()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO matchup_memories (run_id, expert_id, home_team, away_team, summary, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (run_id, expert_id, matchup_key) DO UPDATE SET
		     summary = EXCLUDED.summary,
		     updated_at = EXCLUDED.updated_at`,
		m.RunID, m.ExpertID, m.HomeTeam, m.AwayTeam, m.Summary, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert matchup memory: %w", err)
	}
	return nil
}

// GetMatchupMemory retrieves the aggregated memory for a matchup, keyed by
// the role-agnostic sorted team pair.
func (db *DB) GetMatchupMemory(ctx context.Context, runID, expertID, homeTeam, awayTeam string) (model.MatchupMemory, error) {
	key := model.MatchupKeySorted(homeTeam, awayTeam)
	var m model.MatchupMemory
	err := db.pool.QueryRow(ctx,
		`SELECT run_id, expert_id, home_team, away_team, summary, updated_at
		 FROM matchup_memories WHERE run_id = $1 AND expert_id = $2 AND matchup_key = $3`,
		runID, expertID, key,
	).Scan(&m.RunID, &m.ExpertID, &m.HomeTeam, &m.AwayTeam, &m.Summary, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MatchupMemory{}, fmt.Errorf("storage: matchup memory %s: %w", key, ErrNotFound)
		}
		return model.MatchupMemory{}, fmt.Errorf("storage: get matchup memory: %w", err)
	}
	return m, nil
}
