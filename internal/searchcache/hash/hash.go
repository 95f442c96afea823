// Package hash implements the digests used for search deduplication.
//
// Both digests use the djb2 polynomial string hash (seed 5381, multiply by
// 33 and add each byte) folded to 32 bits and rendered in base36. The
// functions are pure: identical normalized input always yields the same
// output within and across process runs, which is what makes duplicate
// detection survive restarts.
package hash

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// EmptyResultHash is the sentinel for a result payload with no ads
const EmptyResultHash = "empty"

// requestKey is the normalized JSON shape the request hash is computed over.
// Field order is fixed by struct declaration order, so the serialization is
// deterministic.
type requestKey struct {
	SearchType   string   `json:"search_type"`
	Query        string   `json:"query"`
	Countries    []string `json:"countries"`
	ActiveStatus string   `json:"active_status"`
	MediaType    string   `json:"media_type"`
}

// Request computes the digest of a search's input parameters. The query is
// trimmed and lower-cased and countries are sorted, so two requests with the
// same logical parameters hash identically regardless of country order or
// whitespace and case in the query.
func Request(searchType, query string, countries []string, activeStatus, mediaType string) string {
	sorted := make([]string, len(countries))
	copy(sorted, countries)
	sort.Strings(sorted)

	key := requestKey{
		SearchType:   searchType,
		Query:        strings.ToLower(strings.TrimSpace(query)),
		Countries:    sorted,
		ActiveStatus: activeStatus,
		MediaType:    mediaType,
	}

	// Marshal of a flat struct of strings cannot fail.
	buf, _ := json.Marshal(key)
	return djb2(buf)
}

// Result computes the digest of the set of ad archive IDs returned by a
// search: the sorted, comma-joined list of unique IDs. An empty list hashes
// to the EmptyResultHash sentinel.
func Result(adArchiveIDs []string) string {
	if len(adArchiveIDs) == 0 {
		return EmptyResultHash
	}

	seen := make(map[string]struct{}, len(adArchiveIDs))
	unique := make([]string, 0, len(adArchiveIDs))
	for _, id := range adArchiveIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	return djb2([]byte(strings.Join(unique, ",")))
}

// djb2 is the classic polynomial string hash: seed 5381, h = h*33 + c,
// folded to 32 bits by uint32 overflow, rendered in base36.
func djb2(data []byte) string {
	var h uint32 = 5381
	for _, c := range data {
		h = h*33 + uint32(c)
	}
	return strconv.FormatUint(uint64(h), 36)
}
