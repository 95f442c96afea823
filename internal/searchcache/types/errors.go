package types

import "errors"

var (
	ErrInvalidSearchType = errors.New("invalid search type")
	ErrEmptyQuery        = errors.New("query must not be empty")
	ErrEmptyResult       = errors.New("result payload must not be empty")
)
