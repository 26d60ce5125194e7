package domain

import "time"

// Query is one frozen evaluation query.
type Query struct {
	QueryID   string `json:"query_id" yaml:"query_id"`
	QueryType string `json:"query_type" yaml:"query_type"`
	QueryText string `json:"query_text" yaml:"query_text"`
}

// QuerySet is an ordered, hash-frozen list of queries.
type QuerySet struct {
	Name    string  `json:"name" yaml:"name"`
	Hash    string  `json:"hash" yaml:"hash"`
	Queries []Query `json:"queries" yaml:"queries"`
}

// FamilyHit is a family-level retrieval result after collapsing chunk hits.
type FamilyHit struct {
	Rank      int       `json:"rank"`
	FamilyID  string    `json:"family_id"`
	Score     float64   `json:"score"`
	VectorID  string    `json:"vector_id"`
	ChunkType ChunkType `json:"chunk_type"`
	Preview   string    `json:"preview"`
}

// RunRecord is the raw result of one query against one collection.
type RunRecord struct {
	RunID        string      `json:"run_id"`
	QuerySetHash string      `json:"query_set_hash"`
	QueryID      string      `json:"query_id"`
	QueryType    string      `json:"query_type"`
	QueryText    string      `json:"query_text"`
	Collection   string      `json:"collection"`
	Layer        string      `json:"layer"`
	TopK         int         `json:"top_k"`
	NResults     int         `json:"n_results"`
	Hits         []FamilyHit `json:"hits"`
	CreatedAt    time.Time   `json:"created_at"`
}

// FamilyIDs returns the ranked family ids of the record.
func (r RunRecord) FamilyIDs() []string {
	ids := make([]string, 0, len(r.Hits))
	for _, h := range r.Hits {
		ids = append(ids, h.FamilyID)
	}
	return ids
}

// PairOverlap is the mean top-K family overlap between two layers.
type PairOverlap struct {
	A       string  `json:"a"`
	B       string  `json:"b"`
	Jaccard float64 `json:"jaccard_at_k"`
}

// EvalSummary aggregates one evaluation run.
type EvalSummary struct {
	RunID        string             `json:"run_id"`
	QuerySet     string             `json:"query_set"`
	QuerySetHash string             `json:"query_set_hash"`
	Collections  []string           `json:"collections"`
	Layers       []string           `json:"layers"`
	TopK         int                `json:"top_k"`
	NResults     int                `json:"n_results"`
	Queries      int                `json:"queries"`
	Records      int                `json:"records"`
	Overlap      []PairOverlap      `json:"overlap"`
	Recall       map[string]float64 `json:"recall_at_k,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}
