package data

import (
	"context"

	"github.com/adscope/adscope-backend/internal/pkg/database"
	"github.com/adscope/adscope-backend/internal/searchcache/biz"
	"gorm.io/gorm"
)

// StorageResetter performs the full-reset operation across both cache
// tables in a single transaction, so no reader observes a half-cleared
// state.
type StorageResetter struct {
	db *database.DB
}

// NewStorageResetter creates a storage resetter
func NewStorageResetter(db *database.DB) biz.StorageResetter {
	return &StorageResetter{db: db}
}

// ClearAll empties the search result and history tables atomically
func (s *StorageResetter) ClearAll(ctx context.Context) error {
	return s.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM search_results").Error; err != nil {
			return err
		}
		return tx.Exec("DELETE FROM search_history").Error
	})
}
