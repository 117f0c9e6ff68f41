package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/glyph/internal/ir"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Get reads one item slot. found is false when the slot was never written.
func (s *Store) Get(ctx context.Context, itemID string, ns Namespace, key string) (value string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT value FROM item_data WHERE item_id = ? AND namespace = ? AND key = ?
	`, itemID, string(ns), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get item data: %w", err)
	}
	return value, true, nil
}

// Keys lists the keys of an item's slots in a namespace.
// Results are ordered by key COLLATE BINARY.
func (s *Store) Keys(ctx context.Context, itemID string, ns Namespace) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM item_data
		WHERE item_id = ? AND namespace = ?
		ORDER BY key COLLATE BINARY ASC
	`, itemID, string(ns))
	if err != nil {
		return nil, fmt.Errorf("list item keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan item key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item keys: %w", err)
	}
	return keys, nil
}

// CatalogRecord is one stored catalog.
type CatalogRecord struct {
	Hash    string
	Effects int
	Seq     int64
	Catalog ir.Catalog
}

// LatestCatalog returns the most recently saved catalog.
// Returns ErrNotFound when none was saved.
func (s *Store) LatestCatalog(ctx context.Context) (CatalogRecord, error) {
	return s.scanCatalog(s.db.QueryRowContext(ctx, `
		SELECT hash, catalog, effects, seq FROM catalogs
		ORDER BY seq DESC LIMIT 1
	`))
}

// Catalog returns the catalog stored under hash.
// Returns ErrNotFound when no catalog has that hash.
func (s *Store) Catalog(ctx context.Context, hash string) (CatalogRecord, error) {
	return s.scanCatalog(s.db.QueryRowContext(ctx, `
		SELECT hash, catalog, effects, seq FROM catalogs WHERE hash = ?
	`, hash))
}

func (s *Store) scanCatalog(row *sql.Row) (CatalogRecord, error) {
	var (
		rec  CatalogRecord
		data string
	)
	if err := row.Scan(&rec.Hash, &data, &rec.Effects, &rec.Seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CatalogRecord{}, fmt.Errorf("catalog: %w", ErrNotFound)
		}
		return CatalogRecord{}, fmt.Errorf("read catalog: %w", err)
	}
	catalog, err := unmarshalCatalog(data)
	if err != nil {
		return CatalogRecord{}, fmt.Errorf("read catalog %s: %w", rec.Hash, err)
	}
	rec.Catalog = catalog
	return rec, nil
}
