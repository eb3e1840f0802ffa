package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested record does not exist
var ErrNotFound = errors.New("record not found")

// StorageInterface defines the read contract for community record storage
type StorageInterface interface {
	Retrieve(ctx context.Context, filename string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
