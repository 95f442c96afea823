package data

import (
	"context"

	"github.com/adscope/adscope-backend/internal/pkg/database"
	"github.com/adscope/adscope-backend/internal/searchcache/biz"
	"github.com/adscope/adscope-backend/internal/searchcache/types"
)

// HistoryEntryPO is the database model for the bounded search history index
type HistoryEntryPO struct {
	ID           string `gorm:"primarykey;size:255"`
	SearchType   string `gorm:"size:16;not null"`
	Query        string `gorm:"size:512;not null"`
	Countries    string `gorm:"size:512;not null"`
	ActiveStatus string `gorm:"size:32;not null"`
	MediaType    string `gorm:"size:32;not null"`
	TotalAds     int    `gorm:"not null;default:0"`
	CreatedAt    int64  `gorm:"not null;index:idx_search_history_created_at;autoCreateTime:false"`
	RequestHash  string `gorm:"size:16;not null;index:idx_search_history_request_hash"`
	ResultHash   string `gorm:"size:16;not null"`
}

func (HistoryEntryPO) TableName() string {
	return "search_history"
}

// HistoryRepo is the gorm-backed history repository
type HistoryRepo struct {
	db *database.DB
}

// NewHistoryRepo creates a history repository
func NewHistoryRepo(db *database.DB) biz.HistoryRepo {
	return &HistoryRepo{db: db}
}

// Insert adds a history entry
func (r *HistoryRepo) Insert(ctx context.Context, entry *types.HistoryEntry) error {
	po := &HistoryEntryPO{
		ID:           entry.ID,
		SearchType:   string(entry.SearchType),
		Query:        entry.Query,
		Countries:    joinCountries(entry.Countries),
		ActiveStatus: entry.ActiveStatus,
		MediaType:    entry.MediaType,
		TotalAds:     entry.TotalAds,
		CreatedAt:    entry.CreatedAt,
		RequestHash:  entry.RequestHash,
		ResultHash:   entry.ResultHash,
	}

	return r.db.WithContext(ctx).Create(po).Error
}

// FindByRequestHash returns the entry for the given request hash, or nil
// when none exists. By invariant at most one entry per request hash exists;
// if concurrent saves ever violate that, the newest entry wins.
func (r *HistoryRepo) FindByRequestHash(ctx context.Context, requestHash string) (*types.HistoryEntry, error) {
	var po HistoryEntryPO
	err := r.db.WithContext(ctx).
		Where("request_hash = ?", requestHash).
		Order("created_at DESC").
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}

	return toHistoryEntry(&po), nil
}

// List returns up to limit entries, newest first
func (r *HistoryRepo) List(ctx context.Context, limit int) ([]*types.HistoryEntry, error) {
	var pos []HistoryEntryPO
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*types.HistoryEntry, len(pos))
	for i := range pos {
		entries[i] = toHistoryEntry(&pos[i])
	}

	return entries, nil
}

// Delete removes the entry with the given identifier. Deleting a missing
// entry is a no-op, not an error.
func (r *HistoryRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&HistoryEntryPO{}).Error
}

// TrimToLimit deletes the oldest entries beyond the given bound and returns
// how many were removed
func (r *HistoryRepo) TrimToLimit(ctx context.Context, limit int) (int64, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&HistoryEntryPO{}).
		Order("created_at DESC, id DESC").
		Offset(limit).
		Limit(1000).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&HistoryEntryPO{})

	return result.RowsAffected, result.Error
}

// Clear empties the history table
func (r *HistoryRepo) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec("DELETE FROM search_history").Error
}

func toHistoryEntry(po *HistoryEntryPO) *types.HistoryEntry {
	return &types.HistoryEntry{
		ID:           po.ID,
		SearchType:   types.SearchType(po.SearchType),
		Query:        po.Query,
		Countries:    splitCountries(po.Countries),
		ActiveStatus: po.ActiveStatus,
		MediaType:    po.MediaType,
		TotalAds:     po.TotalAds,
		CreatedAt:    po.CreatedAt,
		RequestHash:  po.RequestHash,
		ResultHash:   po.ResultHash,
	}
}
