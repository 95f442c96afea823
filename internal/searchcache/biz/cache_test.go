package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/adscope/adscope-backend/internal/searchcache/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---- in-memory fakes ----

type fakeResultRepo struct {
	mu   sync.Mutex
	recs map[string]*types.SearchResult
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{recs: make(map[string]*types.SearchResult)}
}

func (f *fakeResultRepo) Create(_ context.Context, rec *types.SearchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.recs[rec.ID] = &cp
	return nil
}

func (f *fakeResultRepo) GetByID(_ context.Context, id string) (*types.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeResultRepo) GetLatest(_ context.Context) (*types.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.SearchResult
	for _, rec := range f.recs {
		if latest == nil || rec.CreatedAt > latest.CreatedAt {
			latest = rec
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeResultRepo) ListAll(_ context.Context) ([]*types.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.SearchResult, 0, len(f.recs))
	for _, rec := range f.recs {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (f *fakeResultRepo) DeleteOlderThan(_ context.Context, cutoff int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, rec := range f.recs {
		if rec.CreatedAt < cutoff {
			delete(f.recs, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []*types.HistoryEntry
}

func (f *fakeHistoryRepo) Insert(_ context.Context, entry *types.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeHistoryRepo) FindByRequestHash(_ context.Context, requestHash string) (*types.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *types.HistoryEntry
	for _, e := range f.entries {
		if e.RequestHash == requestHash && (found == nil || e.CreatedAt > found.CreatedAt) {
			found = e
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (f *fakeHistoryRepo) List(_ context.Context, limit int) ([]*types.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.HistoryEntry, len(f.entries))
	for i, e := range f.entries {
		cp := *e
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeHistoryRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeHistoryRepo) TrimToLimit(_ context.Context, limit int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) <= limit {
		return 0, nil
	}
	sort.Slice(f.entries, func(i, j int) bool { return f.entries[i].CreatedAt > f.entries[j].CreatedAt })
	evicted := int64(len(f.entries) - limit)
	f.entries = f.entries[:limit]
	return evicted, nil
}

func (f *fakeHistoryRepo) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
	return nil
}

type fakeResetter struct {
	results *fakeResultRepo
	history *fakeHistoryRepo
}

func (f *fakeResetter) ClearAll(_ context.Context) error {
	f.results.mu.Lock()
	f.results.recs = make(map[string]*types.SearchResult)
	f.results.mu.Unlock()
	return f.history.Clear(context.Background())
}

type fakeSessions struct {
	cleared int
}

func (f *fakeSessions) ClearSessionKeys(_ context.Context) error {
	f.cleared++
	return nil
}

// inlineScheduler runs tasks synchronously so tests observe sweep effects
// deterministically.
type inlineScheduler struct{}

func (inlineScheduler) Submit(task func()) error {
	task()
	return nil
}

// tickingClock returns a strictly increasing time, one millisecond per call
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *tickingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ---- test harness ----

type cacheFixture struct {
	uc       *SearchCacheUseCase
	results  *fakeResultRepo
	history  *fakeHistoryRepo
	sessions *fakeSessions
	clock    *tickingClock
}

func newFixture(t *testing.T, opts ...func(*Config)) *cacheFixture {
	t.Helper()

	results := newFakeResultRepo()
	history := &fakeHistoryRepo{}
	sessions := &fakeSessions{}
	clock := newTickingClock()

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	uc := NewSearchCacheUseCase(
		results,
		history,
		&fakeResetter{results: results, history: history},
		sessions,
		nil, // tests schedule sweeps explicitly unless stated otherwise
		cfg,
		zap.NewNop(),
		WithNow(clock.Now),
	)

	return &cacheFixture{
		uc:       uc,
		results:  results,
		history:  history,
		sessions: sessions,
		clock:    clock,
	}
}

func saveReq(query string, adIDs ...string) *types.SaveSearchRequest {
	ads := make([]map[string]string, len(adIDs))
	for i, id := range adIDs {
		ads[i] = map[string]string{"ad_archive_id": id}
	}
	payload, _ := json.Marshal(map[string]interface{}{"ads": ads})

	return &types.SaveSearchRequest{
		SearchType:   types.SearchTypeKeyword,
		Query:        query,
		Countries:    []string{"US"},
		ActiveStatus: "active",
		MediaType:    "all",
		Result:       payload,
	}
}

// ---- tests ----

func TestSaveSearchResult_FirstSeen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.uc.SaveSearchResult(ctx, saveReq("shoes", "1", "2"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := f.uc.GetSearchResult(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "shoes", rec.Query)
	assert.NotEmpty(t, rec.RequestHash)
	assert.NotEmpty(t, rec.ResultHash)

	history, err := f.uc.GetHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].ID)
	assert.Equal(t, 2, history[0].TotalAds)
}

func TestSaveSearchResult_IdenticalRepeatIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id1, err := f.uc.SaveSearchResult(ctx, saveReq("shoes", "1", "2"))
	require.NoError(t, err)

	id2, err := f.uc.SaveSearchResult(ctx, saveReq("shoes", "1", "2"))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	// The result itself is always stored, even when history skips it.
	rec2, err := f.uc.GetSearchResult(ctx, id2)
	require.NoError(t, err)
	assert.NotNil(t, rec2)

	history, err := f.uc.GetHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id1, history[0].ID)
}

func TestSaveSearchResult_NormalizedParamsStillDeduplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req1 := saveReq("Running Shoes", "1")
	req1.Countries = []string{"US", "GB"}
	_, err := f.uc.SaveSearchResult(ctx, req1)
	require.NoError(t, err)

	req2 := saveReq("  running shoes  ", "1")
	req2.Countries = []string{"GB", "US"}
	_, err = f.uc.SaveSearchResult(ctx, req2)
	require.NoError(t, err)

	history, err := f.uc.GetHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSaveSearchResult_ChangedResultsSupersede(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id1, err := f.uc.SaveSearchResult(ctx, saveReq("shoes", "1"))
	require.NoError(t, err)

	id2, err := f.uc.SaveSearchResult(ctx, saveReq("shoes", "1", "3"))
	require.NoError(t, err)

	history, err := f.uc.GetHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id2, history[0].ID)
	assert.NotEqual(t, id1, history[0].ID)
	assert.Equal(t, 2, history[0].TotalAds)

	rec2, err := f.uc.GetSearchResult(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, rec2.ResultHash, history[0].ResultHash)
}

func TestSaveSearchResult_HistoryBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := f.uc.SaveSearchResult(ctx, saveReq(fmt.Sprintf("query-%02d", i), "1"))
		require.NoError(t, err)
	}

	history, err := f.uc.GetHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 20)

	// Newest first; the five oldest searches were evicted.
	assert.Equal(t, "query-24", history[0].Query)
	assert.Equal(t, "query-05", history[19].Query)
	for _, e := range history {
		assert.NotContains(t, []string{"query-00", "query-01", "query-02", "query-03", "query-04"}, e.Query)
	}
}

func TestSaveSearchResult_EmptyAdListHashesToSentinel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.uc.SaveSearchResult(ctx, saveReq("niche query"))
	require.NoError(t, err)

	rec, err := f.uc.GetSearchResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "empty", rec.ResultHash)

	history, err := f.uc.GetHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 0, history[0].TotalAds)
}

func TestSaveSearchResult_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := saveReq("shoes", "1")
	req.SearchType = "video"

	_, err := f.uc.SaveSearchResult(ctx, req)
	assert.ErrorIs(t, err, types.ErrInvalidSearchType)

	history, err := f.uc.GetHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSweepExpired_AgesOutOldResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	oldID, err := f.uc.SaveSearchResult(ctx, saveReq("old search", "1"))
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)

	newID, err := f.uc.SaveSearchResult(ctx, saveReq("new search", "2"))
	require.NoError(t, err)

	deleted, err := f.uc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	oldRec, err := f.uc.GetSearchResult(ctx, oldID)
	require.NoError(t, err)
	assert.Nil(t, oldRec)

	newRec, err := f.uc.GetSearchResult(ctx, newID)
	require.NoError(t, err)
	assert.NotNil(t, newRec)
}

func TestSweepExpired_RetainsRecentResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.uc.SaveSearchResult(ctx, saveReq("recent", "1"))
	require.NoError(t, err)

	f.clock.Advance(6 * 24 * time.Hour)

	deleted, err := f.uc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	rec, err := f.uc.GetSearchResult(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestSaveSearchResult_SchedulesSweep(t *testing.T) {
	results := newFakeResultRepo()
	history := &fakeHistoryRepo{}
	clock := newTickingClock()

	uc := NewSearchCacheUseCase(
		results,
		history,
		&fakeResetter{results: results, history: history},
		&fakeSessions{},
		inlineScheduler{},
		DefaultConfig(),
		zap.NewNop(),
		WithNow(clock.Now),
	)
	ctx := context.Background()

	oldID, err := uc.SaveSearchResult(ctx, saveReq("old", "1"))
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour)

	// This save's background sweep runs inline and ages out the old record.
	_, err = uc.SaveSearchResult(ctx, saveReq("new", "2"))
	require.NoError(t, err)

	rec, err := uc.GetSearchResult(ctx, oldID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetLatestSearchResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	latest, err := f.uc.GetLatestSearchResult(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = f.uc.SaveSearchResult(ctx, saveReq("first", "1"))
	require.NoError(t, err)

	id2, err := f.uc.SaveSearchResult(ctx, saveReq("second", "2"))
	require.NoError(t, err)

	latest, err = f.uc.GetLatestSearchResult(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, id2, latest.ID)
}

func TestGetSearchResult_AbsentIsNotAnError(t *testing.T) {
	f := newFixture(t)

	rec, err := f.uc.GetSearchResult(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeleteHistoryEntry_LeavesResultCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.uc.SaveSearchResult(ctx, saveReq("shoes", "1"))
	require.NoError(t, err)

	require.NoError(t, f.uc.DeleteHistoryEntry(ctx, id))

	history, err := f.uc.GetHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	rec, err := f.uc.GetSearchResult(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, rec)

	// Deleting again is a no-op.
	assert.NoError(t, f.uc.DeleteHistoryEntry(ctx, id))
}

func TestClearHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.uc.SaveSearchResult(ctx, saveReq("shoes", "1"))
	require.NoError(t, err)

	require.NoError(t, f.uc.ClearHistory(ctx))

	history, err := f.uc.GetHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	rec, err := f.uc.GetSearchResult(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestClearAllStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.uc.SaveSearchResult(ctx, saveReq("shoes", "1"))
	require.NoError(t, err)

	require.NoError(t, f.uc.ClearAllStorage(ctx))

	history, err := f.uc.GetHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	rec, err := f.uc.GetSearchResult(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Equal(t, 1, f.sessions.cleared)
}

func TestFindAdInResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.SaveSearchResult(ctx, saveReq("shoes", "101", "102"))
	require.NoError(t, err)

	ad, err := f.uc.FindAdInResults(ctx, "102")
	require.NoError(t, err)
	require.NotNil(t, ad)
	assert.JSONEq(t, `{"ad_archive_id":"102"}`, string(ad))

	ad, err = f.uc.FindAdInResults(ctx, "999")
	require.NoError(t, err)
	assert.Nil(t, ad)
}

func TestFindAdInResults_FallsBackToIDField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := saveReq("shoes")
	req.Result = json.RawMessage(`{"ads":[{"id":"42","page_name":"Acme"}]}`)

	_, err := f.uc.SaveSearchResult(ctx, req)
	require.NoError(t, err)

	ad, err := f.uc.FindAdInResults(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, ad)
	assert.JSONEq(t, `{"id":"42","page_name":"Acme"}`, string(ad))
}

func TestResultHash_IgnoresAdOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.SaveSearchResult(ctx, saveReq("shoes", "1", "2", "3"))
	require.NoError(t, err)

	// Same set of ads in a different order is the same result.
	_, err = f.uc.SaveSearchResult(ctx, saveReq("shoes", "3", "1", "2"))
	require.NoError(t, err)

	history, err := f.uc.GetHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
