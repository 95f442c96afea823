package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adscope/adscope-backend/internal/searchcache/hash"
	"github.com/adscope/adscope-backend/internal/searchcache/types"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// SearchResultRepo is the repository for full search result records
type SearchResultRepo interface {
	Create(ctx context.Context, rec *types.SearchResult) error
	// GetByID returns (nil, nil) when the identifier is unknown.
	GetByID(ctx context.Context, id string) (*types.SearchResult, error)
	// GetLatest returns (nil, nil) when the table is empty.
	GetLatest(ctx context.Context) (*types.SearchResult, error)
	ListAll(ctx context.Context) ([]*types.SearchResult, error)
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

// HistoryRepo is the repository for the bounded history index
type HistoryRepo interface {
	Insert(ctx context.Context, entry *types.HistoryEntry) error
	// FindByRequestHash returns (nil, nil) when no entry exists for the hash.
	FindByRequestHash(ctx context.Context, requestHash string) (*types.HistoryEntry, error)
	List(ctx context.Context, limit int) ([]*types.HistoryEntry, error)
	// Delete is a no-op for unknown identifiers.
	Delete(ctx context.Context, id string) error
	TrimToLimit(ctx context.Context, limit int) (int64, error)
	Clear(ctx context.Context) error
}

// StorageResetter clears both cache tables as one atomic unit
type StorageResetter interface {
	ClearAll(ctx context.Context) error
}

// SessionStore sweeps session-scoped transient keys during a full reset
type SessionStore interface {
	ClearSessionKeys(ctx context.Context) error
}

// SweepScheduler runs a task asynchronously. The worker pool satisfies it.
type SweepScheduler interface {
	Submit(task func()) error
}

// Config holds the cache policy knobs
type Config struct {
	// HistoryLimit bounds the history index; oldest entries beyond it are
	// evicted.
	HistoryLimit int
	// Retention is how long raw result payloads are kept before the aging
	// sweep deletes them.
	Retention time.Duration
}

// DefaultConfig returns the default cache policy: 20 history entries,
// 7 days of raw result retention.
func DefaultConfig() *Config {
	return &Config{
		HistoryLimit: 20,
		Retention:    7 * 24 * time.Hour,
	}
}

// SearchCacheUseCase is the deduplicated search result cache. It owns both
// collections; all access goes through its methods.
//
// Saves are not serialized against each other: two concurrent saves sharing
// a request hash can both observe "no existing entry" and both insert. This
// is an accepted race, kept intentionally; reads resolve it by preferring
// the newest entry per request hash.
type SearchCacheUseCase struct {
	results   SearchResultRepo
	history   HistoryRepo
	resetter  StorageResetter
	sessions  SessionStore
	scheduler SweepScheduler
	config    *Config
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a SearchCacheUseCase
type Option func(*SearchCacheUseCase)

// WithNow overrides the use case's clock. Intended for tests.
func WithNow(now func() time.Time) Option {
	return func(uc *SearchCacheUseCase) {
		uc.now = now
	}
}

// NewSearchCacheUseCase creates the search cache use case
func NewSearchCacheUseCase(
	results SearchResultRepo,
	history HistoryRepo,
	resetter StorageResetter,
	sessions SessionStore,
	scheduler SweepScheduler,
	config *Config,
	logger *zap.Logger,
	opts ...Option,
) *SearchCacheUseCase {
	if config == nil {
		config = DefaultConfig()
	}

	uc := &SearchCacheUseCase{
		results:   results,
		history:   history,
		resetter:  resetter,
		sessions:  sessions,
		scheduler: scheduler,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// SaveSearchResult stores a completed search, reconciles the history index,
// and schedules an aging sweep of old payloads. The result record is always
// stored; whether a history entry is added depends on the duplicate policy.
// Returns the new record's identifier.
func (uc *SearchCacheUseCase) SaveSearchResult(ctx context.Context, req *types.SaveSearchRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	requestHash := hash.Request(string(req.SearchType), req.Query, req.Countries, req.ActiveStatus, req.MediaType)
	adIDs, totalAds := extractAds(req.Result)
	resultHash := hash.Result(adIDs)

	now := uc.now()
	rec := &types.SearchResult{
		ID:           newResultID(req.SearchType, req.Query, now),
		SearchType:   req.SearchType,
		Query:        req.Query,
		Countries:    req.Countries,
		ActiveStatus: req.ActiveStatus,
		MediaType:    req.MediaType,
		Result:       req.Result,
		CreatedAt:    now.UnixMilli(),
		RequestHash:  requestHash,
		ResultHash:   resultHash,
	}

	if err := uc.results.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to store search result: %w", err)
	}

	if err := uc.reconcileHistory(ctx, rec, totalAds); err != nil {
		return "", err
	}

	uc.scheduleSweep()

	return rec.ID, nil
}

// reconcileHistory enforces the one-entry-per-request-hash invariant:
// first-time searches insert, identical repeats are discarded, changed
// results supersede the stale entry.
func (uc *SearchCacheUseCase) reconcileHistory(ctx context.Context, rec *types.SearchResult, totalAds int) error {
	existing, err := uc.history.FindByRequestHash(ctx, rec.RequestHash)
	if err != nil {
		return fmt.Errorf("failed to look up history: %w", err)
	}

	if existing != nil {
		if existing.ResultHash == rec.ResultHash {
			uc.logger.Debug("duplicate search with unchanged results, history untouched",
				zap.String("request_hash", rec.RequestHash),
			)
			return nil
		}

		// Same parameters, different ads: retire the stale entry before
		// inserting the new one.
		if err := uc.history.Delete(ctx, existing.ID); err != nil {
			return fmt.Errorf("failed to retire stale history entry: %w", err)
		}
	}

	entry := &types.HistoryEntry{
		ID:           rec.ID,
		SearchType:   rec.SearchType,
		Query:        rec.Query,
		Countries:    rec.Countries,
		ActiveStatus: rec.ActiveStatus,
		MediaType:    rec.MediaType,
		TotalAds:     totalAds,
		CreatedAt:    rec.CreatedAt,
		RequestHash:  rec.RequestHash,
		ResultHash:   rec.ResultHash,
	}

	if err := uc.history.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	evicted, err := uc.history.TrimToLimit(ctx, uc.config.HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	if evicted > 0 {
		uc.logger.Debug("evicted oldest history entries", zap.Int64("count", evicted))
	}

	return nil
}

// GetSearchResult returns the full record for the identifier, or nil when
// absent. A missing key is not an error.
func (uc *SearchCacheUseCase) GetSearchResult(ctx context.Context, id string) (*types.SearchResult, error) {
	return uc.results.GetByID(ctx, id)
}

// GetLatestSearchResult returns the most recently created record, or nil
// when the cache is empty
func (uc *SearchCacheUseCase) GetLatestSearchResult(ctx context.Context) (*types.SearchResult, error) {
	return uc.results.GetLatest(ctx)
}

// GetHistory returns the history index, newest first, bounded to the
// configured limit
func (uc *SearchCacheUseCase) GetHistory(ctx context.Context) ([]*types.HistoryEntry, error) {
	return uc.history.List(ctx, uc.config.HistoryLimit)
}

// DeleteHistoryEntry removes exactly one history entry. The corresponding
// result record stays cached until aged out or explicitly cleared.
func (uc *SearchCacheUseCase) DeleteHistoryEntry(ctx context.Context, id string) error {
	return uc.history.Delete(ctx, id)
}

// ClearHistory empties the history index only
func (uc *SearchCacheUseCase) ClearHistory(ctx context.Context) error {
	return uc.history.Clear(ctx)
}

// ClearAllStorage is the full reset: both tables are emptied in one
// transaction and session-scoped transient keys are swept. Afterwards the
// store is indistinguishable from freshly initialized.
func (uc *SearchCacheUseCase) ClearAllStorage(ctx context.Context) error {
	if err := uc.resetter.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear cache tables: %w", err)
	}

	if err := uc.sessions.ClearSessionKeys(ctx); err != nil {
		return fmt.Errorf("failed to clear session keys: %w", err)
	}

	uc.logger.Info("search cache fully cleared")
	return nil
}

// FindAdInResults scans all stored result payloads for the given ad archive
// ID and returns the first matching ad object, or nil when none matches.
// The scan is linear; history is bounded and result lists are page-sized,
// so this stays cheap.
func (uc *SearchCacheUseCase) FindAdInResults(ctx context.Context, adArchiveID string) ([]byte, error) {
	records, err := uc.results.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		ads := gjson.GetBytes(rec.Result, "ads")
		if !ads.IsArray() {
			continue
		}

		var found []byte
		ads.ForEach(func(_, ad gjson.Result) bool {
			if adIdentifier(ad) == adArchiveID {
				found = []byte(ad.Raw)
				return false
			}
			return true
		})

		if found != nil {
			return found, nil
		}
	}

	return nil, nil
}

// SweepExpired deletes result records older than the retention window and
// returns how many were removed. SaveSearchResult schedules this in the
// background; callers that need a deterministic sweep invoke it directly.
func (uc *SearchCacheUseCase) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := uc.now().Add(-uc.config.Retention).UnixMilli()

	deleted, err := uc.results.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired results: %w", err)
	}

	if deleted > 0 {
		uc.logger.Info("aged out expired search results", zap.Int64("count", deleted))
	}

	return deleted, nil
}

// scheduleSweep fires the aging sweep without awaiting it. Sweep failures
// are logged, never surfaced to the triggering save.
func (uc *SearchCacheUseCase) scheduleSweep() {
	if uc.scheduler == nil {
		return
	}

	err := uc.scheduler.Submit(func() {
		if _, err := uc.SweepExpired(context.Background()); err != nil {
			uc.logger.Warn("background sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		uc.logger.Warn("failed to schedule sweep", zap.Error(err))
	}
}

// extractAds pulls the ad archive identifiers and the total ad count out of
// the opaque result payload. Ads without an ad_archive_id fall back to their
// id field; ads with neither contribute to the count but not the hash.
func extractAds(payload []byte) ([]string, int) {
	ads := gjson.GetBytes(payload, "ads")
	if !ads.IsArray() {
		return nil, 0
	}

	var ids []string
	total := 0
	ads.ForEach(func(_, ad gjson.Result) bool {
		total++
		if id := adIdentifier(ad); id != "" {
			ids = append(ids, id)
		}
		return true
	})

	return ids, total
}

func adIdentifier(ad gjson.Result) string {
	if id := ad.Get("ad_archive_id"); id.Exists() {
		return id.String()
	}
	return ad.Get("id").String()
}

// newResultID builds the record identifier from the search type, a query
// slug, the creation time in millis, and a short random suffix that keeps
// IDs unique even for same-millisecond saves.
func newResultID(searchType types.SearchType, query string, now time.Time) string {
	slug := strings.ToLower(strings.TrimSpace(query))
	slug = strings.Join(strings.Fields(slug), "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}

	suffix := strings.Split(uuid.NewString(), "-")[0]

	return fmt.Sprintf("%s_%s_%d_%s", searchType, slug, now.UnixMilli(), suffix)
}
