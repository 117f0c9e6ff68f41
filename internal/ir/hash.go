package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainCatalog = "glyph/catalog/v1"
	DomainEffect  = "glyph/effect/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CatalogHash computes the content-addressed hash of a compiled catalog.
// Two catalogs with the same declarations in the same order hash equally,
// which lets a reload be skipped when nothing changed.
func CatalogHash(c Catalog) (string, error) {
	canonical, err := MarshalCanonical(c)
	if err != nil {
		return "", fmt.Errorf("CatalogHash: %w", err)
	}
	return hashWithDomain(DomainCatalog, canonical), nil
}

// EffectHash computes the content-addressed hash of one effect spec.
func EffectHash(e EffectSpec) (string, error) {
	canonical, err := MarshalCanonical(e)
	if err != nil {
		return "", fmt.Errorf("EffectHash: %w", err)
	}
	return hashWithDomain(DomainEffect, canonical), nil
}
