// Package store is the key-filtered persistence collaborator the side-effect
// applier writes case records through. Tables and fields use the logical
// camelCase names; adapters map them to their own column naming.
package store

import (
	"context"
	"fmt"
	"time"
)

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

// Record is one row keyed by logical field name.
type Record map[string]any

// Fields maps logical field names to values. A nil value means NULL; a
// filter on nil matches NULL.
type Fields map[string]any

// Store reads and writes records by equality filters.
type Store interface {
	Query(ctx context.Context, table string, filters Fields) ([]Record, error)
	Patch(ctx context.Context, table string, filters, fields Fields) (int64, error)
	Create(ctx context.Context, table string, fields Fields) error
	// RunInTx runs fn so that its writes commit or roll back together.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Upsert patches the records matching filters, or creates one carrying both
// filters and fields when none match. It reports whether a record was
// created.
func Upsert(ctx context.Context, s Store, table string, filters, fields Fields) (bool, error) {
	existing, err := s.Query(ctx, table, filters)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", table, err)
	}
	if len(existing) > 0 {
		if _, err := s.Patch(ctx, table, filters, fields); err != nil {
			return false, fmt.Errorf("patching %s: %w", table, err)
		}
		return false, nil
	}

	row := make(Fields, len(filters)+len(fields))
	for k, v := range fields {
		row[k] = v
	}
	for k, v := range filters {
		row[k] = v
	}
	if err := s.Create(ctx, table, row); err != nil {
		return false, fmt.Errorf("creating %s: %w", table, err)
	}
	return true, nil
}

// normalize dereferences the optional types the applier writes so every
// adapter sees plain values or nil.
func normalize(v any) any {
	switch t := v.(type) {
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	case *int:
		if t == nil {
			return nil
		}
		return int64(*t)
	case *int64:
		if t == nil {
			return nil
		}
		return *t
	case int:
		return int64(t)
	default:
		return v
	}
}
