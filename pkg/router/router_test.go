package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/lens/pkg/cache"
	"github.com/pario-ai/lens/pkg/lro"
	"github.com/pario-ai/lens/pkg/models"
)

// fakeService implements Service for testing.
type fakeService struct {
	records  map[string]models.AnalysisRecord
	cacheErr error
	clipErr  error
	deleted  []string
	cleared  bool
	analyzed []models.AnalyzeRequest
}

func (f *fakeService) Analyze(_ context.Context, req models.AnalyzeRequest) (models.AnalyzeResponse, error) {
	f.analyzed = append(f.analyzed, req)
	return models.AnalyzeResponse{
		Result:     models.AnalysisResult{Scores: map[string]float64{"credibility": 6}, Rationale: "ok"},
		ComputedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func (f *fakeService) Cached(_ context.Context, key string) (models.AnalysisRecord, bool, error) {
	if f.cacheErr != nil {
		return models.AnalysisRecord{}, false, f.cacheErr
	}
	rec, ok := f.records[key]
	return rec, ok, nil
}

func (f *fakeService) History(context.Context) ([]models.AnalysisRecord, error) {
	if f.cacheErr != nil {
		return nil, f.cacheErr
	}
	return nil, nil
}

func (f *fakeService) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeService) ClearHistory(context.Context) error {
	f.cleared = true
	return nil
}

func (f *fakeService) GenerateClip(context.Context, models.ClipRequest) (models.ClipResponse, error) {
	if f.clipErr != nil {
		return models.ClipResponse{}, f.clipErr
	}
	return models.ClipResponse{Payload: []byte("MP4DATA"), ContentType: "video/mp4"}, nil
}

// roundTrip sends msg through Handle and decodes the reply as JSON.
func roundTrip(t *testing.T, r *Router, msg Message) map[string]any {
	t.Helper()
	data, err := json.Marshal(r.Handle(context.Background(), msg))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestAnalyzeArticle(t *testing.T) {
	svc := &fakeService{}
	r := New(svc)

	out := roundTrip(t, r, Message{
		ID:      "m1",
		Type:    AnalyzeArticle,
		Payload: json.RawMessage(`{"text":"body","url":"https://a.test/1","title":"T","author":"A"}`),
	})

	assert.Equal(t, "m1", out["id"])
	assert.Nil(t, out["error"])
	data := out["data"].(map[string]any)
	assert.Equal(t, false, data["servedFromCache"])
	assert.Equal(t, "2026-01-02T03:04:05Z", data["computedAt"])
	require.Len(t, svc.analyzed, 1)
	assert.Equal(t, "A", svc.analyzed[0].Author)
}

func TestGetCachedAnalysis(t *testing.T) {
	svc := &fakeService{records: map[string]models.AnalysisRecord{
		"https://a.test/1": {Key: "https://a.test/1", Title: "Cached"},
	}}
	r := New(svc)

	out := roundTrip(t, r, Message{Type: GetCachedAnalysis, Payload: json.RawMessage(`"https://a.test/1"`)})
	assert.Equal(t, "Cached", out["data"].(map[string]any)["title"])
	assert.NotEmpty(t, out["id"], "missing ids are generated")

	out = roundTrip(t, r, Message{Type: GetCachedAnalysis, Payload: json.RawMessage(`{"url":"https://a.test/1"}`)})
	assert.Equal(t, "Cached", out["data"].(map[string]any)["title"])

	out = roundTrip(t, r, Message{Type: GetCachedAnalysis, Payload: json.RawMessage(`"https://a.test/none"`)})
	assert.Contains(t, out, "data")
	assert.Nil(t, out["data"])
}

func TestGetCachedAnalysisStoreErrorIsNull(t *testing.T) {
	r := New(&fakeService{cacheErr: cache.ErrStoreUnavailable})

	out := roundTrip(t, r, Message{Type: GetCachedAnalysis, Payload: json.RawMessage(`"https://a.test/1"`)})
	assert.Nil(t, out["data"])
	assert.Nil(t, out["error"])
}

func TestHistoryIsNeverNull(t *testing.T) {
	r := New(&fakeService{})

	out := roundTrip(t, r, Message{Type: GetArticleHistory})
	assert.Equal(t, []any{}, out["data"])
}

func TestDeleteAndClear(t *testing.T) {
	svc := &fakeService{}
	r := New(svc)

	out := roundTrip(t, r, Message{Type: DeleteArticle, Payload: json.RawMessage(`"https://a.test/1"`)})
	assert.Equal(t, map[string]any{"success": true}, out["data"])
	assert.Equal(t, []string{"https://a.test/1"}, svc.deleted)

	out = roundTrip(t, r, Message{Type: ClearHistory})
	assert.Equal(t, map[string]any{"success": true}, out["data"])
	assert.True(t, svc.cleared)
}

func TestGenerateVideo(t *testing.T) {
	r := New(&fakeService{})

	out := roundTrip(t, r, Message{Type: GenerateVideo, Payload: json.RawMessage(`{"title":"T","excerpt":"E","rationale":"R"}`)})
	data := out["data"].(map[string]any)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("MP4DATA")), data["payload"])
	assert.Equal(t, "video/mp4", data["contentType"])
}

func TestGenerateVideoStageError(t *testing.T) {
	r := New(&fakeService{clipErr: errors.Join(lro.ErrOperationFailed, errors.New("quota exceeded"))})

	out := roundTrip(t, r, Message{Type: GenerateVideo, Payload: json.RawMessage(`{"title":"T"}`)})
	assert.Nil(t, out["data"])
	assert.Contains(t, out["error"], "quota exceeded")
	assert.Equal(t, "operation_failed", out["code"])
}

func TestInvalidPayloads(t *testing.T) {
	r := New(&fakeService{})

	out := roundTrip(t, r, Message{Type: AnalyzeArticle})
	assert.Equal(t, "invalid_request", out["code"])

	out = roundTrip(t, r, Message{Type: GenerateVideo, Payload: json.RawMessage(`[1,2]`)})
	assert.Equal(t, "invalid_request", out["code"])
}

func TestUnknownType(t *testing.T) {
	r := New(&fakeService{})

	out := roundTrip(t, r, Message{ID: "x", Type: "SUMMON_DRAGON"})
	assert.Equal(t, "unknown_type", out["code"])
	assert.Contains(t, out["error"], "SUMMON_DRAGON")
}

func TestRunLineProtocol(t *testing.T) {
	r := New(&fakeService{})
	in := strings.Join([]string{
		`{"id":"1","type":"CLEAR_HISTORY"}`,
		``,
		`not json`,
		`{"id":"3","type":"GET_ARTICLE_HISTORY"}`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, r.Run(context.Background(), strings.NewReader(in), &out))

	var replies []Reply
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var reply Reply
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &reply))
		replies = append(replies, reply)
	}
	require.Len(t, replies, 3)
	assert.Equal(t, "1", replies[0].ID)
	assert.Equal(t, "parse_error", replies[1].Code)
	assert.Equal(t, "3", replies[2].ID)
	assert.Empty(t, replies[2].Error)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	r := New(&fakeService{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := r.Run(ctx, strings.NewReader(`{"type":"CLEAR_HISTORY"}`+"\n"), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, out.Len())
}

type memJournal struct {
	entries []models.AuditEntry
}

func (j *memJournal) Log(_ context.Context, e models.AuditEntry) error {
	j.entries = append(j.entries, e)
	return nil
}

func TestJournalRecordsOutcomes(t *testing.T) {
	j := &memJournal{}
	r := New(&fakeService{clipErr: lro.ErrOperationTimedOut}, WithJournal(j))

	r.Handle(context.Background(), Message{ID: "a", Type: DeleteArticle, Payload: json.RawMessage(`"https://a.test/1"`)})
	r.Handle(context.Background(), Message{ID: "b", Type: GenerateVideo, Payload: json.RawMessage(`{"title":"Quake"}`)})
	r.Handle(context.Background(), Message{ID: "c", Type: AnalyzeArticle, Payload: json.RawMessage(`{"url":"https://a.test/2","text":"x"}`)})

	require.Len(t, j.entries, 3)
	assert.Equal(t, "https://a.test/1", j.entries[0].Target)
	assert.True(t, j.entries[0].Succeeded())

	assert.Equal(t, "Quake", j.entries[1].Target)
	assert.Equal(t, "operation_timed_out", j.entries[1].Code)
	assert.Equal(t, string(GenerateVideo), j.entries[1].Type)

	assert.Equal(t, "https://a.test/2", j.entries[2].Target)
}

func TestRecordFieldsAreCamelCase(t *testing.T) {
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	r := New(&fakeService{records: map[string]models.AnalysisRecord{
		"https://a.test/1": {Key: "https://a.test/1", Title: "Cached", CreatedAt: created},
	}})

	out := roundTrip(t, r, Message{Type: GetCachedAnalysis, Payload: json.RawMessage(`"https://a.test/1"`)})
	data := out["data"].(map[string]any)
	assert.Equal(t, "2026-02-03T04:05:06Z", data["createdAt"])
	assert.NotContains(t, data, "created_at")
}
