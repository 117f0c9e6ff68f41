package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/glyph/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCatalog creates a small catalog with one effect.
func createTestCatalog(effectID string) ir.Catalog {
	return ir.Catalog{
		Targets: []ir.TargetSpec{{ID: "sword", Items: []string{"DIAMOND_SWORD"}, Slots: []ir.Slot{ir.SlotHand}}},
		Effects: []ir.EffectSpec{{
			ID:       effectID,
			MaxLevel: 3,
			Targets:  []string{"sword"},
			Variables: ir.VariablesSpec{
				Ordinary: []ir.OrdinarySpec{{Name: "bonus", Value: 2.5}},
			},
		}},
	}
}
