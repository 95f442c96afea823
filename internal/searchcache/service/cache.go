package service

import (
	"encoding/json"
	"errors"

	"github.com/adscope/adscope-backend/internal/pkg/response"
	"github.com/adscope/adscope-backend/internal/searchcache/biz"
	"github.com/adscope/adscope-backend/internal/searchcache/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SearchCacheService exposes the search cache over HTTP
type SearchCacheService struct {
	uc     *biz.SearchCacheUseCase
	logger *zap.Logger
}

// NewSearchCacheService creates the search cache service
func NewSearchCacheService(uc *biz.SearchCacheUseCase, logger *zap.Logger) *SearchCacheService {
	return &SearchCacheService{
		uc:     uc,
		logger: logger,
	}
}

// RegisterRoutes mounts the cache endpoints under the given router group
func (s *SearchCacheService) RegisterRoutes(rg *gin.RouterGroup) {
	searches := rg.Group("/searches")
	{
		searches.POST("", s.SaveSearch)
		searches.GET("/latest", s.GetLatestSearch)
		searches.GET("/history", s.GetHistory)
		searches.DELETE("/history", s.ClearHistory)
		searches.DELETE("/history/:id", s.DeleteHistoryEntry)
		searches.GET("/:id", s.GetSearch)
		searches.DELETE("", s.ClearAllStorage)
	}

	rg.GET("/ads/:ad_archive_id", s.FindAd)
}

// SaveSearchResponse is the body returned by a successful save
type SaveSearchResponse struct {
	ID string `json:"id"`
}

// SaveSearch stores a completed search execution
func (s *SearchCacheService) SaveSearch(c *gin.Context) {
	var req types.SaveSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	id, err := s.uc.SaveSearchResult(c.Request.Context(), &req)
	if err != nil {
		if isValidationError(err) {
			response.BadRequest(c, err.Error())
			return
		}
		s.logger.Error("failed to save search result", zap.Error(err))
		response.InternalError(c, "failed to save search result")
		return
	}

	response.Created(c, SaveSearchResponse{ID: id})
}

// GetSearch returns the full cached record for an identifier
func (s *SearchCacheService) GetSearch(c *gin.Context) {
	id := c.Param("id")

	rec, err := s.uc.GetSearchResult(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("failed to get search result", zap.String("id", id), zap.Error(err))
		response.InternalError(c, "failed to get search result")
		return
	}
	if rec == nil {
		response.NotFound(c, "search result not found")
		return
	}

	response.Success(c, rec)
}

// GetLatestSearch returns the most recently stored record
func (s *SearchCacheService) GetLatestSearch(c *gin.Context) {
	rec, err := s.uc.GetLatestSearchResult(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to get latest search result", zap.Error(err))
		response.InternalError(c, "failed to get latest search result")
		return
	}
	if rec == nil {
		response.NotFound(c, "no search results cached")
		return
	}

	response.Success(c, rec)
}

// GetHistory returns the bounded history index, newest first
func (s *SearchCacheService) GetHistory(c *gin.Context) {
	entries, err := s.uc.GetHistory(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to get search history", zap.Error(err))
		response.InternalError(c, "failed to get search history")
		return
	}

	if entries == nil {
		entries = []*types.HistoryEntry{}
	}
	response.Success(c, entries)
}

// DeleteHistoryEntry removes one history entry. Unknown identifiers are
// treated as already deleted.
func (s *SearchCacheService) DeleteHistoryEntry(c *gin.Context) {
	id := c.Param("id")

	if err := s.uc.DeleteHistoryEntry(c.Request.Context(), id); err != nil {
		s.logger.Error("failed to delete history entry", zap.String("id", id), zap.Error(err))
		response.InternalError(c, "failed to delete history entry")
		return
	}

	response.NoContent(c)
}

// ClearHistory empties the history index
func (s *SearchCacheService) ClearHistory(c *gin.Context) {
	if err := s.uc.ClearHistory(c.Request.Context()); err != nil {
		s.logger.Error("failed to clear search history", zap.Error(err))
		response.InternalError(c, "failed to clear search history")
		return
	}

	response.NoContent(c)
}

// ClearAllStorage performs the full reset across results, history and
// session keys
func (s *SearchCacheService) ClearAllStorage(c *gin.Context) {
	if err := s.uc.ClearAllStorage(c.Request.Context()); err != nil {
		s.logger.Error("failed to clear storage", zap.Error(err))
		response.InternalError(c, "failed to clear storage")
		return
	}

	response.NoContent(c)
}

// FindAd scans cached results for an ad by its archive identifier
func (s *SearchCacheService) FindAd(c *gin.Context) {
	adArchiveID := c.Param("ad_archive_id")

	ad, err := s.uc.FindAdInResults(c.Request.Context(), adArchiveID)
	if err != nil {
		s.logger.Error("failed to search cached ads", zap.String("ad_archive_id", adArchiveID), zap.Error(err))
		response.InternalError(c, "failed to search cached ads")
		return
	}
	if ad == nil {
		response.NotFound(c, "ad not found in cached results")
		return
	}

	response.Success(c, json.RawMessage(ad))
}

func isValidationError(err error) bool {
	return errors.Is(err, types.ErrInvalidSearchType) ||
		errors.Is(err, types.ErrEmptyQuery) ||
		errors.Is(err, types.ErrEmptyResult)
}
