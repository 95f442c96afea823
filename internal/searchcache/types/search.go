package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SearchType identifies which kind of ad search was executed
type SearchType string

const (
	SearchTypeKeyword SearchType = "keyword"
	SearchTypePage    SearchType = "page"
)

// ParseSearchType converts a string into a SearchType
func ParseSearchType(s string) (SearchType, error) {
	switch SearchType(s) {
	case SearchTypeKeyword, SearchTypePage:
		return SearchType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSearchType, s)
	}
}

// SearchResult is the full persisted record of one search execution,
// including the raw backend payload. RequestHash and ResultHash are computed
// once at write time and always populated.
type SearchResult struct {
	ID           string          `json:"id"`
	SearchType   SearchType      `json:"search_type"`
	Query        string          `json:"query"`
	Countries    []string        `json:"countries"`
	ActiveStatus string          `json:"active_status"`
	MediaType    string          `json:"media_type"`
	Result       json.RawMessage `json:"result"`
	CreatedAt    int64           `json:"created_at"` // epoch millis
	RequestHash  string          `json:"request_hash"`
	ResultHash   string          `json:"result_hash"`
}

// HistoryEntry is the lightweight index record shown to users. At most one
// entry exists per distinct request hash at any time.
type HistoryEntry struct {
	ID           string     `json:"id"`
	SearchType   SearchType `json:"search_type"`
	Query        string     `json:"query"`
	Countries    []string   `json:"countries"`
	ActiveStatus string     `json:"active_status"`
	MediaType    string     `json:"media_type"`
	TotalAds     int        `json:"total_ads"`
	CreatedAt    int64      `json:"created_at"` // epoch millis
	RequestHash  string     `json:"request_hash"`
	ResultHash   string     `json:"result_hash"`
}

// SaveSearchRequest carries the parameters and raw payload of a completed
// search into the cache
type SaveSearchRequest struct {
	SearchType   SearchType      `json:"search_type"`
	Query        string          `json:"query"`
	Countries    []string        `json:"countries"`
	ActiveStatus string          `json:"active_status"`
	MediaType    string          `json:"media_type"`
	Result       json.RawMessage `json:"result"`
}

// Validate checks the request for required fields
func (r *SaveSearchRequest) Validate() error {
	if _, err := ParseSearchType(string(r.SearchType)); err != nil {
		return err
	}
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	if len(r.Result) == 0 {
		return ErrEmptyResult
	}
	return nil
}
