// Package router dispatches typed messages from callers to the
// orchestrator and exposes them over line-delimited JSON on stdio.
package router

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/pario-ai/lens/pkg/logging"
	"github.com/pario-ai/lens/pkg/metrics"
	"github.com/pario-ai/lens/pkg/models"
	"github.com/pario-ai/lens/pkg/orchestrator"
)

// Service is what the router needs from the orchestrator.
type Service interface {
	Analyze(ctx context.Context, req models.AnalyzeRequest) (models.AnalyzeResponse, error)
	Cached(ctx context.Context, key string) (models.AnalysisRecord, bool, error)
	History(ctx context.Context) ([]models.AnalysisRecord, error)
	Delete(ctx context.Context, key string) error
	ClearHistory(ctx context.Context) error
	GenerateClip(ctx context.Context, req models.ClipRequest) (models.ClipResponse, error)
}

// Journal records handled messages.
type Journal interface {
	Log(ctx context.Context, entry models.AuditEntry) error
}

// Router dispatches messages to a Service.
type Router struct {
	svc     Service
	journal Journal
	log     zerolog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithJournal records every handled message in j.
func WithJournal(j Journal) Option {
	return func(r *Router) { r.journal = j }
}

// New creates a Router.
func New(svc Service, opts ...Option) *Router {
	r := &Router{svc: svc, log: logging.Component("router")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// handlerFunc handles one message type and returns the reply data.
type handlerFunc func(ctx context.Context, r *Router, payload json.RawMessage) (any, error)

// handlers maps message types to their handlers.
var handlers = map[MessageType]handlerFunc{
	AnalyzeArticle:    handleAnalyze,
	GetCachedAnalysis: handleCached,
	GetArticleHistory: handleHistory,
	DeleteArticle:     handleDelete,
	ClearHistory:      handleClear,
	GenerateVideo:     handleVideo,
}

// Handle dispatches msg and always returns a reply.
func (r *Router) Handle(ctx context.Context, msg Message) Reply {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	start := time.Now()
	reply := r.dispatch(ctx, msg)
	r.record(ctx, msg, reply, time.Since(start))
	return reply
}

func (r *Router) dispatch(ctx context.Context, msg Message) Reply {
	reply := Reply{ID: msg.ID, Type: msg.Type}

	handler, ok := handlers[msg.Type]
	if !ok {
		metrics.MessagesTotal.WithLabelValues("unknown", "error").Inc()
		reply.Error = fmt.Sprintf("unknown message type: %s", msg.Type)
		reply.Code = "unknown_type"
		return reply
	}

	data, err := handler(ctx, r, msg.Payload)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues(string(msg.Type), "error").Inc()
		r.log.Warn().Err(err).Str("id", msg.ID).Str("type", string(msg.Type)).Msg("message failed")
		reply.Error = err.Error()
		reply.Code = orchestrator.ErrorCode(err)
		return reply
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.Type), "ok").Inc()
	reply.Data = data
	return reply
}

func (r *Router) record(ctx context.Context, msg Message, reply Reply, elapsed time.Duration) {
	if r.journal == nil {
		return
	}
	entry := models.AuditEntry{
		MessageID: msg.ID,
		Type:      string(msg.Type),
		Target:    target(msg),
		Code:      reply.Code,
		Error:     reply.Error,
		LatencyMs: elapsed.Milliseconds(),
	}
	if err := r.journal.Log(context.WithoutCancel(ctx), entry); err != nil {
		r.log.Warn().Err(err).Str("id", msg.ID).Msg("journal write failed")
	}
}

// target names what a message is about: the article URL, or the clip title.
func target(msg Message) string {
	p := gjson.ParseBytes(msg.Payload)
	if p.Type == gjson.String {
		return p.String()
	}
	if u := p.Get("url"); u.Exists() {
		return u.String()
	}
	return p.Get("title").String()
}

// Run reads one Message per line from in and writes one Reply per line to
// out. It returns when in is exhausted or ctx is cancelled.
func (r *Router) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			r.write(out, Reply{Error: "parse error", Code: "parse_error"})
			continue
		}
		r.write(out, r.Handle(ctx, msg))
	}
	return scanner.Err()
}

func (r *Router) write(w io.Writer, reply Reply) {
	data, err := json.Marshal(reply)
	if err != nil {
		r.log.Error().Err(err).Msg("marshal reply")
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		r.log.Error().Err(err).Msg("write reply")
	}
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: missing payload", orchestrator.ErrInvalidRequest)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", orchestrator.ErrInvalidRequest, err)
	}
	return nil
}

func handleAnalyze(ctx context.Context, r *Router, payload json.RawMessage) (any, error) {
	var req models.AnalyzeRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	return r.svc.Analyze(ctx, req)
}

func handleCached(ctx context.Context, r *Router, payload json.RawMessage) (any, error) {
	var p urlPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	rec, ok, err := r.svc.Cached(ctx, p.URL)
	if err != nil {
		// A broken store reads as "nothing cached".
		r.log.Warn().Err(err).Str("key", p.URL).Msg("cached lookup failed")
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	return rec, nil
}

func handleHistory(ctx context.Context, r *Router, _ json.RawMessage) (any, error) {
	records, err := r.svc.History(ctx)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.AnalysisRecord{}
	}
	return records, nil
}

func handleDelete(ctx context.Context, r *Router, payload json.RawMessage) (any, error) {
	var p urlPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	if err := r.svc.Delete(ctx, p.URL); err != nil {
		return nil, err
	}
	return Success{Success: true}, nil
}

func handleClear(ctx context.Context, r *Router, _ json.RawMessage) (any, error) {
	if err := r.svc.ClearHistory(ctx); err != nil {
		return nil, err
	}
	return Success{Success: true}, nil
}

func handleVideo(ctx context.Context, r *Router, payload json.RawMessage) (any, error) {
	var req models.ClipRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	clip, err := r.svc.GenerateClip(ctx, req)
	if err != nil {
		return nil, err
	}
	return VideoReply{
		Payload:     base64.StdEncoding.EncodeToString(clip.Payload),
		ContentType: clip.ContentType,
	}, nil
}
