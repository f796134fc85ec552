package model

// CategoryFamily groups the 83 categories for relevance weighting and
// telemetry (§3 Category Registry).
type CategoryFamily string

const (
	FamilyMarkets      CategoryFamily = "markets"
	FamilyScores       CategoryFamily = "scores"
	FamilyQuarters     CategoryFamily = "quarters"
	FamilyTeamProps    CategoryFamily = "team_props"
	FamilyGameProps    CategoryFamily = "game_props"
	FamilyPlayerProps  CategoryFamily = "player_props"
	FamilyAdvanced     CategoryFamily = "advanced"
	FamilyLive         CategoryFamily = "live"
	FamilySituational  CategoryFamily = "situational"
)

// PredType is the value shape a category's assertion must take.
type PredType string

const (
	PredBinary     PredType = "binary"
	PredEnum       PredType = "enum"
	PredNumeric    PredType = "numeric"
	PredPercentage PredType = "percentage"
)

// NumericRange bounds a numeric category's legal values.
type NumericRange struct {
	Min float64
	Max float64
}

// Category describes one of the exactly 83 immutable-per-run prediction
// categories (§3 Category Registry).
type Category struct {
	ID       string
	Family   CategoryFamily
	PredType PredType
	Sigma    *float64      // prior stdev, numeric categories only
	Enum     []string      // declared set, enum categories only
	Binary   [2]string     // declared pair, binary categories only (e.g. "HOME","AWAY")
	Range    *NumericRange // numeric/percentage categories only
}

// CategoryRegistry is the immutable, ordered set of 83 categories for a run.
type CategoryRegistry struct {
	categories []Category
	byID       map[string]Category
}

// NewCategoryRegistry builds a registry from a category list, indexing by ID.
func NewCategoryRegistry(categories []Category) *CategoryRegistry {
	byID := make(map[string]Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}
	return &CategoryRegistry{categories: categories, byID: byID}
}

// Len returns the category count (must be 83 for a valid registry).
func (r *CategoryRegistry) Len() int { return len(r.categories) }

// All returns the categories in registry order.
func (r *CategoryRegistry) All() []Category { return r.categories }

// Get resolves a category_id, reporting ok=false if unknown.
func (r *CategoryRegistry) Get(id string) (Category, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// IDs returns every category_id in registry order.
func (r *CategoryRegistry) IDs() []string {
	ids := make([]string, len(r.categories))
	for i, c := range r.categories {
		ids[i] = c.ID
	}
	return ids
}

// ExactCategoryCount is the invariant cardinality of the registry (§3, §8.1).
const ExactCategoryCount = 83
