package store

import (
	"context"
	"fmt"

	"github.com/roach88/glyph/internal/ir"
)

// Namespace selects which slot family of an item a key lives in.
type Namespace string

const (
	// NamespaceData holds normal per-item slots.
	NamespaceData Namespace = "data"

	// NamespaceRaw holds lower-level raw paths.
	NamespaceRaw Namespace = "raw"
)

// Put writes one item slot, replacing any previous value.
func (s *Store) Put(ctx context.Context, itemID string, ns Namespace, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_data (item_id, namespace, key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(item_id, namespace, key) DO UPDATE SET value = excluded.value
	`, itemID, string(ns), key, value)
	if err != nil {
		return fmt.Errorf("put item data: %w", err)
	}
	return nil
}

// Delete removes one item slot. Deleting a missing slot is not an error.
func (s *Store) Delete(ctx context.Context, itemID string, ns Namespace, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM item_data WHERE item_id = ? AND namespace = ? AND key = ?
	`, itemID, string(ns), key)
	if err != nil {
		return fmt.Errorf("delete item data: %w", err)
	}
	return nil
}

// Clear removes every slot of an item and returns how many were removed.
func (s *Store) Clear(ctx context.Context, itemID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM item_data WHERE item_id = ?`, itemID)
	if err != nil {
		return 0, fmt.Errorf("clear item data: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear item data: %w", err)
	}
	return n, nil
}

// SaveCatalog records a compiled catalog under its content hash.
// Uses ON CONFLICT(hash) DO NOTHING for idempotency: saving the same catalog
// twice keeps the first seq.
func (s *Store) SaveCatalog(ctx context.Context, catalog ir.Catalog) (string, error) {
	hash, err := ir.CatalogHash(catalog)
	if err != nil {
		return "", fmt.Errorf("save catalog: %w", err)
	}
	data, err := marshalCatalog(catalog)
	if err != nil {
		return "", fmt.Errorf("save catalog: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO catalogs (hash, catalog, effects, seq)
		SELECT ?, ?, ?, COALESCE(MAX(seq), 0) + 1 FROM catalogs WHERE true
		ON CONFLICT(hash) DO NOTHING
	`, hash, data, len(catalog.Effects))
	if err != nil {
		return "", fmt.Errorf("save catalog: %w", err)
	}
	return hash, nil
}
