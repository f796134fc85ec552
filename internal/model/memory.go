package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// MemoryType enumerates the EpisodicMemory.type values (§3).
type MemoryType string

const (
	MemoryReasoning  MemoryType = "reasoning"
	MemoryContextual MemoryType = "contextual"
	MemoryMarket     MemoryType = "market"
	MemoryLearning   MemoryType = "learning"
	MemoryOutcome    MemoryType = "outcome"
)

// EmbeddingDims is the fixed dimensionality of every embedding column (§3).
const EmbeddingDims = 1536

// EpisodicMemory is a stored, embeddable fact about a past game or experience
// (§3 EpisodicMemory). Never mutated after creation, only superseded by a new
// row (e.g. once write-behind embedding jobs populate the remaining vectors).
type EpisodicMemory struct {
	MemoryID  uuid.UUID  `json:"memory_id"`
	RunID     string     `json:"run_id"`
	ExpertID  string     `json:"expert_id"`
	GameID    string     `json:"game_id"`
	Type      MemoryType `json:"type"`
	Content   string     `json:"content"`
	HomeTeam  string     `json:"home_team"`
	AwayTeam  string     `json:"away_team"`
	Season    int        `json:"season"`
	Week      int        `json:"week"`
	GameDate  time.Time  `json:"game_date"`
	Metadata  map[string]any `json:"metadata"`

	// Four independently-populated 1536-dim embeddings. At least Combined must
	// be non-nil for the memory to be eligible for retrieval (§4.3); the rest
	// may be filled in later by a write-behind embedding job.
	GameContextEmbedding *pgvector.Vector `json:"-"`
	PredictionEmbedding  *pgvector.Vector `json:"-"`
	OutcomeEmbedding     *pgvector.Vector `json:"-"`
	CombinedEmbedding    *pgvector.Vector `json:"-"`

	MemoryStrength float64 `json:"memory_strength"` // [0,1]
	EmotionalState string  `json:"emotional_state"`
	Vividness      float64 `json:"vividness"`  // [0,1]
	DecayRate      float64 `json:"decay_rate"` // (0,1]

	CreatedAt time.Time `json:"created_at"`
}

// NaturalKey is the idempotency key for concurrent writers (§4.3, §5):
// (run_id, expert_id, game_id, type, timestamp). Concurrent duplicate writes
// on this key collapse to a single row; race-losers are no-ops, not errors.
func (m EpisodicMemory) NaturalKey() string {
	return m.RunID + "|" + m.ExpertID + "|" + m.GameID + "|" + string(m.Type) + "|" + m.CreatedAt.UTC().Format(time.RFC3339Nano)
}

// TeamKnowledge is per-(run, expert, team) aggregate knowledge (§3).
type TeamKnowledge struct {
	RunID              string  `json:"run_id"`
	ExpertID           string  `json:"expert_id"`
	TeamID             string  `json:"team_id"`
	RecentPerformance  string  `json:"recent_performance"`
	Trends             string  `json:"trends"`
	ConfidenceLevel    float64 `json:"confidence_level"`
	AccuracyRate       float64 `json:"accuracy_rate"`
	KnowledgeEmbedding *pgvector.Vector `json:"-"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MatchupMemory is per-(run, expert, home, away) head-to-head aggregate
// memory (§3), with a role-agnostic sorted key for FACED-edge aggregation.
type MatchupMemory struct {
	RunID      string `json:"run_id"`
	ExpertID   string `json:"expert_id"`
	HomeTeam   string `json:"home_team"`
	AwayTeam   string `json:"away_team"`
	Summary    string `json:"summary"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MatchupKeySorted is the role-agnostic generated column value: the two team
// IDs joined in lexical order, so a FACED edge aggregates regardless of which
// team was home in a given meeting.
func MatchupKeySorted(home, away string) string {
	if home <= away {
		return home + "|" + away
	}
	return away + "|" + home
}
