package data

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/adscope/adscope-backend/internal/pkg/database"
	"github.com/adscope/adscope-backend/internal/searchcache/biz"
	"github.com/adscope/adscope-backend/internal/searchcache/types"
)

// SearchResultPO is the database model for a cached search execution.
// CreatedAt is the record's epoch-millisecond creation time set by the use
// case, not by gorm.
type SearchResultPO struct {
	ID           string `gorm:"primarykey;size:255"`
	SearchType   string `gorm:"size:16;not null"`
	Query        string `gorm:"size:512;not null;index:idx_search_results_query"`
	Countries    string `gorm:"size:512;not null"`
	ActiveStatus string `gorm:"size:32;not null"`
	MediaType    string `gorm:"size:32;not null"`
	Result       []byte `gorm:"type:jsonb;not null"`
	CreatedAt    int64  `gorm:"not null;index:idx_search_results_created_at;autoCreateTime:false"`
	RequestHash  string `gorm:"size:16;not null"`
	ResultHash   string `gorm:"size:16;not null"`
}

func (SearchResultPO) TableName() string {
	return "search_results"
}

// SearchResultRepo is the gorm-backed search result repository
type SearchResultRepo struct {
	db *database.DB
}

// NewSearchResultRepo creates a search result repository
func NewSearchResultRepo(db *database.DB) biz.SearchResultRepo {
	return &SearchResultRepo{db: db}
}

// Create persists a search result record
func (r *SearchResultRepo) Create(ctx context.Context, rec *types.SearchResult) error {
	po := &SearchResultPO{
		ID:           rec.ID,
		SearchType:   string(rec.SearchType),
		Query:        rec.Query,
		Countries:    joinCountries(rec.Countries),
		ActiveStatus: rec.ActiveStatus,
		MediaType:    rec.MediaType,
		Result:       rec.Result,
		CreatedAt:    rec.CreatedAt,
		RequestHash:  rec.RequestHash,
		ResultHash:   rec.ResultHash,
	}

	return r.db.WithContext(ctx).Create(po).Error
}

// GetByID returns the record with the given identifier, or nil when absent
func (r *SearchResultRepo) GetByID(ctx context.Context, id string) (*types.SearchResult, error) {
	var po SearchResultPO
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}

	return toSearchResult(&po), nil
}

// GetLatest returns the most recently created record, or nil when the table
// is empty
func (r *SearchResultRepo) GetLatest(ctx context.Context) (*types.SearchResult, error) {
	var po SearchResultPO
	err := r.db.WithContext(ctx).Order("created_at DESC").First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}

	return toSearchResult(&po), nil
}

// ListAll returns every stored record, newest first
func (r *SearchResultRepo) ListAll(ctx context.Context) ([]*types.SearchResult, error) {
	var pos []SearchResultPO
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&pos).Error; err != nil {
		return nil, err
	}

	results := make([]*types.SearchResult, len(pos))
	for i := range pos {
		results[i] = toSearchResult(&pos[i])
	}

	return results, nil
}

// DeleteOlderThan removes every record created before the cutoff and returns
// how many were deleted
func (r *SearchResultRepo) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&SearchResultPO{})

	return result.RowsAffected, result.Error
}

func toSearchResult(po *SearchResultPO) *types.SearchResult {
	return &types.SearchResult{
		ID:           po.ID,
		SearchType:   types.SearchType(po.SearchType),
		Query:        po.Query,
		Countries:    splitCountries(po.Countries),
		ActiveStatus: po.ActiveStatus,
		MediaType:    po.MediaType,
		Result:       json.RawMessage(po.Result),
		CreatedAt:    po.CreatedAt,
		RequestHash:  po.RequestHash,
		ResultHash:   po.ResultHash,
	}
}

func joinCountries(countries []string) string {
	return strings.Join(countries, ",")
}

func splitCountries(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
