// Package store defines the persistence contract for searches and contact results.
package store

import (
	"context"
	"errors"

	"github.com/palantir/business-contact-pipeline/internal/leads"
)

// ErrNotFound is returned when a search does not exist.
var ErrNotFound = errors.New("not found")

// Store persists searches and their contact results.
type Store interface {
	CreateSearch(ctx context.Context, area, sector string) (leads.Search, error)
	GetSearch(ctx context.Context, id int64) (leads.Search, error)
	UpdateSearch(ctx context.Context, id int64, u leads.SearchUpdate) error
	ListSearches(ctx context.Context, limit int) ([]leads.Search, error)
	AddContactResult(ctx context.Context, searchID int64, r leads.ContactResult) (int64, error)
	ListContactResults(ctx context.Context, searchID int64) ([]leads.ContactResult, error)
	// DeleteSearch removes a search together with its contact results.
	DeleteSearch(ctx context.Context, id int64) error
	Close() error
}
