// Package ir provides the compiled representation of an effect catalog.
//
// This package contains type definitions only. Every other internal package
// imports ir; ir imports nothing internal, which keeps it the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Specs are plain data produced by internal/compiler and never mutated
//     after compilation; runtime state lives in the owning packages
//   - Declaration order is preserved everywhere (effects, tiers, listeners,
//     tickers) because tick ordering and conflict resolution depend on it
//   - All JSON tags use snake_case
package ir
