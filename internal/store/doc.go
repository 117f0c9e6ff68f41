// Package store provides SQLite-backed durable storage for the engine.
//
// The store holds:
//   - Item data: per-item persisted slots read and written by modifiable
//     variables, split into a normal 'data' namespace and a 'raw' namespace
//   - Catalogs: compiled catalogs keyed by their content hash
//
// Store implements host.ItemStorage.
//
// # Deterministic Query Results
//
// Every multi-row query orders by a stable key with COLLATE BINARY, so
// listings are identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Catalog hashes are computed by ir.CatalogHash using canonical JSON and
// SHA-256 with domain separation.
package store
