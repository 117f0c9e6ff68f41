package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/glyph/internal/ir"
)

// marshalCatalog converts a catalog to canonical JSON TEXT for storage.
// The stored text hashes to the row's hash column.
func marshalCatalog(c ir.Catalog) (string, error) {
	data, err := ir.MarshalCanonical(c)
	if err != nil {
		return "", fmt.Errorf("marshal catalog: %w", err)
	}
	return string(data), nil
}

// unmarshalCatalog parses stored catalog JSON. Numbers are decoded as
// json.Number so integral ordinary variable values survive unchanged.
func unmarshalCatalog(data string) (ir.Catalog, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var c ir.Catalog
	if err := dec.Decode(&c); err != nil {
		return ir.Catalog{}, fmt.Errorf("unmarshal catalog: %w", err)
	}
	return c, nil
}
