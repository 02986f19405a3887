package models

import "time"

// AnalyzeRequest asks for the analysis of one article.
type AnalyzeRequest struct {
	Text   string `json:"text"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
	Source string `json:"source,omitempty"`
}

// AnalyzeResponse is returned by an analysis, cached or fresh.
type AnalyzeResponse struct {
	Result          AnalysisResult `json:"result"`
	ServedFromCache bool           `json:"servedFromCache"`
	ComputedAt      time.Time      `json:"computedAt"`
}

// ClipRequest asks for a short synthesized video about an analysis.
type ClipRequest struct {
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt"`
	Rationale string `json:"rationale"`
}

// ClipResponse carries the downloaded video bytes.
type ClipResponse struct {
	Payload     []byte `json:"payload"`
	ContentType string `json:"contentType"`
}
