package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/lens/pkg/kv"
	"github.com/pario-ai/lens/pkg/models"
)

// countingKV wraps a kv.Store and counts writes.
type countingKV struct {
	kv.Store
	mu   sync.Mutex
	sets int
}

func (c *countingKV) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Store.Set(ctx, key, value)
}

func (c *countingKV) writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

// brokenKV fails every call.
type brokenKV struct{}

func (brokenKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}
func (brokenKV) Set(context.Context, string, []byte) error { return errors.New("disk on fire") }
func (brokenKV) Close() error                              { return nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(t *testing.T) (*Store, *countingKV, *clock) {
	t.Helper()
	backing := &countingKV{Store: kv.NewMemory()}
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(backing, 24*time.Hour, WithClock(clk.now)), backing, clk
}

func record(key string, createdAt time.Time) models.AnalysisRecord {
	return models.AnalysisRecord{
		Key:       key,
		Title:     "title " + key,
		Result:    models.AnalysisResult{Scores: map[string]float64{"credibility": 7}, Rationale: "ok"},
		CreatedAt: createdAt,
	}
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)

	require.NoError(t, s.Put(ctx, record("https://a.test/1", clk.t)))

	rec, ok, err := s.Get(ctx, "https://a.test/1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, rec.Stale)
	assert.Equal(t, 7.0, rec.Result.Scores["credibility"])

	_, ok, err = s.Get(ctx, "https://a.test/2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)
	require.NoError(t, s.Put(ctx, record("k", clk.t)))

	rec, _, _ := s.Get(ctx, "k")
	rec.Result.Scores["credibility"] = 0

	again, _, _ := s.Get(ctx, "k")
	assert.Equal(t, 7.0, again.Result.Scores["credibility"])
}

func TestStaleAfterTTL(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)
	require.NoError(t, s.Put(ctx, record("k", clk.t)))

	clk.t = clk.t.Add(23 * time.Hour)
	rec, _, _ := s.Get(ctx, "k")
	assert.False(t, rec.Stale)

	clk.t = clk.t.Add(time.Hour)
	rec, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok, "stale records stay readable until purged")
	assert.True(t, rec.Stale)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Entries)
	assert.EqualValues(t, 1, stats.Stale)
	assert.Zero(t, stats.Fresh)
}

func TestLastWriterWins(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)

	first := record("k", clk.t)
	second := record("k", clk.t.Add(time.Minute))
	second.Title = "rewritten"
	require.NoError(t, s.Put(ctx, first))
	require.NoError(t, s.Put(ctx, second))

	rec, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "rewritten", rec.Title)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestVersionMismatchResetsEnvelope(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemory()
	legacy := `{"schemaVersion":1,"entries":{"k":{"key":"k","title":"old","createdAt":"2026-03-01T00:00:00Z"}}}`
	require.NoError(t, backing.Set(ctx, EnvelopeKey, []byte(legacy)))

	s := New(backing, time.Hour)
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMissingVersionResetsEnvelope(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemory()
	require.NoError(t, backing.Set(ctx, EnvelopeKey, []byte(`{"entries":{"k":{"key":"k"}}}`)))

	s := New(backing, time.Hour)
	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// The next write replaces the legacy envelope with a current one.
	require.NoError(t, s.Put(ctx, record("fresh", time.Now())))
	all, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "fresh", all[0].Key)
}

func TestUndecodableEnvelopeIsDiscarded(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemory()
	require.NoError(t, backing.Set(ctx, EnvelopeKey, []byte(`not json`)))

	s := New(backing, time.Hour)
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	s, backing, clk := newTestStore(t)
	horizon := 30 * 24 * time.Hour

	require.NoError(t, s.Put(ctx, record("ancient", clk.t.Add(-31*24*time.Hour))))
	require.NoError(t, s.Put(ctx, record("older", clk.t.Add(-40*24*time.Hour))))
	require.NoError(t, s.Put(ctx, record("stale", clk.t.Add(-2*24*time.Hour))))
	require.NoError(t, s.Put(ctx, record("fresh", clk.t.Add(-time.Hour))))
	writesBefore := backing.writes()

	removed, err := s.PurgeOlderThan(ctx, horizon)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, writesBefore+1, backing.writes(), "purge persists once, not per removal")

	_, ok, _ := s.Get(ctx, "ancient")
	assert.False(t, ok)
	rec, ok, _ := s.Get(ctx, "stale")
	require.True(t, ok, "stale but within retention must survive")
	assert.True(t, rec.Stale)
	_, ok, _ = s.Get(ctx, "fresh")
	assert.True(t, ok)
}

func TestPurgeWithNothingToRemoveDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	s, backing, clk := newTestStore(t)
	require.NoError(t, s.Put(ctx, record("fresh", clk.t)))
	writesBefore := backing.writes()

	removed, err := s.PurgeOlderThan(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, writesBefore, backing.writes())
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)
	require.NoError(t, s.Put(ctx, record("a", clk.t)))
	require.NoError(t, s.Put(ctx, record("b", clk.t)))

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "missing"))
	_, ok, _ := s.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)
	require.NoError(t, s.Put(ctx, record("middle", clk.t.Add(-2*time.Hour))))
	require.NoError(t, s.Put(ctx, record("newest", clk.t.Add(-time.Hour))))
	require.NoError(t, s.Put(ctx, record("oldest", clk.t.Add(-3*time.Hour))))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "newest", all[0].Key)
	assert.Equal(t, "middle", all[1].Key)
	assert.Equal(t, "oldest", all[2].Key)
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	s := New(brokenKV{}, time.Hour)

	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	err = s.Put(ctx, record("k", time.Now()))
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = s.PurgeOlderThan(ctx, time.Hour)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestConcurrentPutsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Put(ctx, record(fmt.Sprintf("https://a.test/%d", i), clk.t))
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.PurgeOlderThan(ctx, 30*24*time.Hour)
	}()
	wg.Wait()

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 50)
}

func TestSnakeCaseLayoutResetsEnvelope(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemory()
	older := `{"schema_version":2,"entries":{"k":{"key":"k","title":"old","created_at":"2026-03-01T00:00:00Z"}}}`
	require.NoError(t, backing.Set(ctx, EnvelopeKey, []byte(older)))

	s := New(backing, time.Hour)
	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestEnvelopeUsesCamelCaseFields(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemory()
	s := New(backing, time.Hour)
	require.NoError(t, s.Put(ctx, record("k", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))))

	raw, ok, err := backing.Get(ctx, EnvelopeKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), `"schemaVersion":3`)
	assert.Contains(t, string(raw), `"createdAt":"2026-03-01T00:00:00Z"`)
	assert.NotContains(t, string(raw), "_")
}

func TestStatsSummarizesEnvelope(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)
	oldest := clk.t.Add(-48 * time.Hour)
	newest := clk.t.Add(-time.Hour)
	require.NoError(t, s.Put(ctx, record("old", oldest)))
	require.NoError(t, s.Put(ctx, record("new", newest)))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Entries)
	assert.EqualValues(t, 1, stats.Fresh)
	assert.EqualValues(t, 1, stats.Stale)
	assert.True(t, stats.Oldest.Equal(oldest))
	assert.True(t, stats.Newest.Equal(newest))
}
