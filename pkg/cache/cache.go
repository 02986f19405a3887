// Package cache implements the versioned, TTL-aware analysis cache.
//
// All records live in one envelope stored under a single key of the
// underlying kv.Store. Every mutation reads the whole envelope, changes it in
// memory and writes it back as one value, so a concurrent reader observes
// either the previous or the next envelope and never a partial one.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/pario-ai/lens/pkg/kv"
	"github.com/pario-ai/lens/pkg/logging"
	"github.com/pario-ai/lens/pkg/metrics"
	"github.com/pario-ai/lens/pkg/models"
)

// SchemaVersion is the envelope layout this build reads and writes. Any
// other version on disk is discarded.
const SchemaVersion = 3

// EnvelopeKey is the well-known key the envelope is stored under.
const EnvelopeKey = "analysis-cache"

// ErrStoreUnavailable is returned when the underlying substrate errors.
var ErrStoreUnavailable = errors.New("cache store unavailable")

// Store is the analysis cache.
type Store struct {
	kv  kv.Store
	ttl time.Duration
	now func() time.Time
	log zerolog.Logger

	// mu serializes read-modify-write cycles on the envelope.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over the given substrate with the freshness TTL.
func New(store kv.Store, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		kv:  store,
		ttl: ttl,
		now: time.Now,
		log: logging.Component("cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the freshness horizon.
func (s *Store) TTL() time.Duration { return s.ttl }

// Fresh reports whether rec is still within the TTL.
func (s *Store) Fresh(rec models.AnalysisRecord) bool {
	return s.now().Sub(rec.CreatedAt) < s.ttl
}

// Get returns the record stored under key. A record past its TTL is still
// returned, with Stale set.
func (s *Store) Get(ctx context.Context, key string) (models.AnalysisRecord, bool, error) {
	env, err := s.load(ctx)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		return models.AnalysisRecord{}, false, err
	}

	rec, ok := env.Entries[key]
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return models.AnalysisRecord{}, false, nil
	}

	rec.Result = rec.Result.Clone()
	rec.Stale = !s.Fresh(rec)
	if rec.Stale {
		metrics.CacheLookupsTotal.WithLabelValues("stale").Inc()
	} else {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	}
	return rec, true, nil
}

// Put upserts rec under rec.Key. The last writer wins.
func (s *Store) Put(ctx context.Context, rec models.AnalysisRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("cache put: empty key")
	}
	rec.Stale = false
	rec.Result = rec.Result.Clone()

	return s.mutate(ctx, func(env *models.CacheEnvelope) bool {
		env.Entries[rec.Key] = rec
		return true
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.mutate(ctx, func(env *models.CacheEnvelope) bool {
		if _, ok := env.Entries[key]; !ok {
			return false
		}
		delete(env.Entries, key)
		return true
	})
}

// Clear resets the store to an empty, current-version envelope.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, emptyEnvelope())
}

// PurgeOlderThan removes every record created before now-horizon and
// returns how many were removed. The envelope is written at most once.
func (s *Store) PurgeOlderThan(ctx context.Context, horizon time.Duration) (int, error) {
	cutoff := s.now().Add(-horizon)
	removed := 0

	err := s.mutate(ctx, func(env *models.CacheEnvelope) bool {
		for key, rec := range env.Entries {
			if rec.CreatedAt.Before(cutoff) {
				delete(env.Entries, key)
				removed++
			}
		}
		return removed > 0
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		metrics.CachePurgedTotal.Add(float64(removed))
		s.log.Info().Int("removed", removed).Dur("horizon", horizon).Msg("purged old analyses")
	}
	return removed, nil
}

// List returns every record, newest first.
func (s *Store) List(ctx context.Context) ([]models.AnalysisRecord, error) {
	env, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.AnalysisRecord, 0, len(env.Entries))
	for _, rec := range env.Entries {
		rec.Result = rec.Result.Clone()
		rec.Stale = !s.Fresh(rec)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Stats summarizes the persisted envelope. Hit and miss rates are exported
// through the lens_cache_lookups_total counter instead.
func (s *Store) Stats(ctx context.Context) (models.CacheStats, error) {
	env, err := s.load(ctx)
	if err != nil {
		return models.CacheStats{}, err
	}
	stats := models.CacheStats{Entries: int64(len(env.Entries))}
	for _, rec := range env.Entries {
		if s.Fresh(rec) {
			stats.Fresh++
		} else {
			stats.Stale++
		}
		if stats.Oldest.IsZero() || rec.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = rec.CreatedAt
		}
		if rec.CreatedAt.After(stats.Newest) {
			stats.Newest = rec.CreatedAt
		}
	}
	return stats, nil
}

// mutate runs one locked read-modify-write cycle. fn reports whether it
// changed the envelope; unchanged envelopes are not written back.
func (s *Store) mutate(ctx context.Context, fn func(env *models.CacheEnvelope) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := s.load(ctx)
	if err != nil {
		return err
	}
	if !fn(&env) {
		return nil
	}
	return s.save(ctx, env)
}

func (s *Store) load(ctx context.Context) (models.CacheEnvelope, error) {
	data, found, err := s.kv.Get(ctx, EnvelopeKey)
	if err != nil {
		return models.CacheEnvelope{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !found {
		return emptyEnvelope(), nil
	}

	var env models.CacheEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Warn().Err(err).Msg("discarding undecodable cache envelope")
		return emptyEnvelope(), nil
	}
	if env.SchemaVersion != SchemaVersion {
		s.log.Debug().
			Int("found", env.SchemaVersion).
			Int("want", SchemaVersion).
			Msg("cache schema version mismatch, starting empty")
		return emptyEnvelope(), nil
	}
	if env.Entries == nil {
		env.Entries = make(map[string]models.AnalysisRecord)
	}
	return env, nil
}

func (s *Store) save(ctx context.Context, env models.CacheEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode cache envelope: %w", err)
	}
	if err := s.kv.Set(ctx, EnvelopeKey, data); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func emptyEnvelope() models.CacheEnvelope {
	return models.CacheEnvelope{
		SchemaVersion: SchemaVersion,
		Entries:       make(map[string]models.AnalysisRecord),
	}
}
