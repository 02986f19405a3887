package models

import "time"

// Score bounds for every named dimension of an AnalysisResult.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// AnalysisResult is the structured output of the external analysis function.
type AnalysisResult struct {
	Scores    map[string]float64 `json:"scores"`
	Rationale string             `json:"rationale"`
}

// Clone returns a deep copy so callers never share the scores map.
func (r AnalysisResult) Clone() AnalysisResult {
	out := AnalysisResult{Rationale: r.Rationale}
	if r.Scores != nil {
		out.Scores = make(map[string]float64, len(r.Scores))
		for k, v := range r.Scores {
			out.Scores[k] = v
		}
	}
	return out
}

// Normalize returns a copy with every score clamped to [MinScore, MaxScore].
func (r AnalysisResult) Normalize() AnalysisResult {
	out := r.Clone()
	for k, v := range out.Scores {
		switch {
		case v < MinScore:
			out.Scores[k] = MinScore
		case v > MaxScore:
			out.Scores[k] = MaxScore
		}
	}
	return out
}

// AnalysisRecord is one cached analysis, keyed by its identity key.
type AnalysisRecord struct {
	Key       string         `json:"key"`
	Title     string         `json:"title"`
	Author    string         `json:"author,omitempty"`
	Source    string         `json:"source,omitempty"`
	Result    AnalysisResult `json:"result"`
	CreatedAt time.Time      `json:"createdAt"`
	Stale     bool           `json:"stale"`
}

// CacheEnvelope is the persisted layout of the analysis cache.
type CacheEnvelope struct {
	SchemaVersion int                       `json:"schemaVersion"`
	Entries       map[string]AnalysisRecord `json:"entries"`
}

// CacheStats summarizes the stored envelope.
type CacheStats struct {
	Entries int64     `json:"entries"`
	Fresh   int64     `json:"fresh"`
	Stale   int64     `json:"stale"`
	Oldest  time.Time `json:"oldest"`
	Newest  time.Time `json:"newest"`
}
