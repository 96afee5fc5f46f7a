package store

import "errors"

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidKey   = errors.New("invalid document key")
	ErrInvalidBody  = errors.New("document body is not valid JSON")
	ErrSnapshotPath = errors.New("snapshot path already exists")
)
