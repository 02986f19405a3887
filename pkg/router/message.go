package router

import (
	"github.com/goccy/go-json"
)

// MessageType names a request a caller can send.
type MessageType string

// Supported message types.
const (
	AnalyzeArticle    MessageType = "ANALYZE_ARTICLE"
	GetCachedAnalysis MessageType = "GET_CACHED_ANALYSIS"
	GetArticleHistory MessageType = "GET_ARTICLE_HISTORY"
	DeleteArticle     MessageType = "DELETE_ARTICLE"
	ClearHistory      MessageType = "CLEAR_HISTORY"
	GenerateVideo     MessageType = "GENERATE_VIDEO"
)

// Message is one typed request.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply answers a Message. Exactly one of Data or Error is meaningful.
type Reply struct {
	ID    string      `json:"id"`
	Type  MessageType `json:"type"`
	Data  any         `json:"data"`
	Error string      `json:"error,omitempty"`
	Code  string      `json:"code,omitempty"`
}

// Success is the body of replies that carry no data.
type Success struct {
	Success bool `json:"success"`
}

// VideoReply is the body of a GENERATE_VIDEO reply.
type VideoReply struct {
	Payload     string `json:"payload"`
	ContentType string `json:"contentType"`
}

// urlPayload accepts both a bare JSON string and {"url": "..."}.
type urlPayload struct {
	URL string `json:"url"`
}

func (p *urlPayload) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.URL = s
		return nil
	}
	type plain urlPayload
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	p.URL = v.URL
	return nil
}
