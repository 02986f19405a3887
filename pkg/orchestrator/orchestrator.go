// Package orchestrator coordinates cached article analysis and video clip
// synthesis.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/lens/pkg/analyzer"
	"github.com/pario-ai/lens/pkg/cache"
	"github.com/pario-ai/lens/pkg/logging"
	"github.com/pario-ai/lens/pkg/lro"
	"github.com/pario-ai/lens/pkg/metrics"
	"github.com/pario-ai/lens/pkg/models"
)

var (
	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRemoteAnalysisFailed wraps any failure of the external analyzer.
	ErrRemoteAnalysisFailed = errors.New("remote analysis failed")
)

// DefaultRetention is how long records are kept regardless of freshness.
const DefaultRetention = 30 * 24 * time.Hour

// Operations is the subset of the long-running operation client the
// orchestrator drives.
type Operations interface {
	Start(ctx context.Context, path string, body any) (*lro.Operation, error)
	AwaitCompletion(ctx context.Context, op *lro.Operation) ([]byte, error)
	Resolve(payload []byte) (string, error)
	FetchPayload(ctx context.Context, locator string) ([]byte, string, error)
}

// Orchestrator is the top-level coordinator. Construct it once in the
// composition root and share it.
type Orchestrator struct {
	cache      *cache.Store
	analyzer   analyzer.Analyzer
	ops        Operations
	videoModel string
	retention  time.Duration
	now        func() time.Time
	log        zerolog.Logger

	purges sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetention overrides the purge horizon.
func WithRetention(d time.Duration) Option {
	return func(o *Orchestrator) { o.retention = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithVideoModel sets the model the synthesis operation is started on.
func WithVideoModel(model string) Option {
	return func(o *Orchestrator) { o.videoModel = model }
}

// New creates an Orchestrator. ops may be nil when video generation is not
// configured.
func New(c *cache.Store, a analyzer.Analyzer, ops Operations, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:      c,
		analyzer:   a,
		ops:        ops,
		videoModel: "veo-3.0-fast-generate-001",
		retention:  DefaultRetention,
		now:        time.Now,
		log:        logging.Component("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Analyze returns a fresh cached analysis for req.URL or computes, stores
// and returns a new one. A retention purge is started in the background
// after every call.
func (o *Orchestrator) Analyze(ctx context.Context, req models.AnalyzeRequest) (models.AnalyzeResponse, error) {
	defer o.purgeAsync()

	key := strings.TrimSpace(req.URL)
	if key == "" {
		return models.AnalyzeResponse{}, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	log := o.log.With().Str("key", key).Logger()

	rec, found, err := o.cache.Get(ctx, key)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("cache lookup failed, treating as miss")
	case found && !rec.Stale:
		log.Debug().Msg("serving analysis from cache")
		return models.AnalyzeResponse{
			Result:          rec.Result,
			ServedFromCache: true,
			ComputedAt:      rec.CreatedAt,
		}, nil
	}

	if strings.TrimSpace(req.Text) == "" {
		return models.AnalyzeResponse{}, fmt.Errorf("%w: text is required", ErrInvalidRequest)
	}

	start := o.now()
	result, err := o.analyzer.Analyze(ctx, analyzer.Input{URL: key, Title: req.Title, Text: req.Text})
	elapsed := o.now().Sub(start).Seconds()
	if err != nil {
		metrics.AnalysisDuration.WithLabelValues("error").Observe(elapsed)
		log.Error().Err(err).Msg("analysis failed")
		return models.AnalyzeResponse{}, fmt.Errorf("%w: %w", ErrRemoteAnalysisFailed, err)
	}
	metrics.AnalysisDuration.WithLabelValues("ok").Observe(elapsed)

	computedAt := o.now().UTC()
	result = result.Normalize()
	err = o.cache.Put(ctx, models.AnalysisRecord{
		Key:       key,
		Title:     req.Title,
		Author:    req.Author,
		Source:    req.Source,
		Result:    result,
		CreatedAt: computedAt,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to persist analysis")
	}

	return models.AnalyzeResponse{Result: result, ServedFromCache: false, ComputedAt: computedAt}, nil
}

// Cached returns the stored record for key, stale or not.
func (o *Orchestrator) Cached(ctx context.Context, key string) (models.AnalysisRecord, bool, error) {
	return o.cache.Get(ctx, strings.TrimSpace(key))
}

// History returns every stored record, newest first.
func (o *Orchestrator) History(ctx context.Context) ([]models.AnalysisRecord, error) {
	return o.cache.List(ctx)
}

// Delete removes one record.
func (o *Orchestrator) Delete(ctx context.Context, key string) error {
	return o.cache.Delete(ctx, strings.TrimSpace(key))
}

// ClearHistory removes every record.
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	return o.cache.Clear(ctx)
}

// Purge removes records past the retention horizon.
func (o *Orchestrator) Purge(ctx context.Context) (int, error) {
	return o.cache.PurgeOlderThan(ctx, o.retention)
}

// WaitIdle blocks until background purges have finished.
func (o *Orchestrator) WaitIdle() {
	o.purges.Wait()
}

// purgeAsync starts a retention purge that reports on its own channel and
// never affects the caller's result.
func (o *Orchestrator) purgeAsync() {
	errCh := make(chan error, 1)
	o.purges.Add(2)

	go func() {
		defer o.purges.Done()
		defer close(errCh)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := o.cache.PurgeOlderThan(ctx, o.retention); err != nil {
			errCh <- err
		}
	}()

	go func() {
		defer o.purges.Done()
		for err := range errCh {
			o.log.Warn().Err(err).Msg("background purge failed")
		}
	}()
}
