package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/glyph/internal/config"
	"github.com/roach88/glyph/internal/effect"
	"github.com/roach88/glyph/internal/i18n"
	"github.com/roach88/glyph/internal/ir"
	"github.com/roach88/glyph/internal/store"
	"github.com/roach88/glyph/internal/variable"
)

// settings returns the effective configuration. Commands built without the
// root command fall back to the defaults.
func (o *RootOptions) settings() config.Config {
	if o.Config.Locale == "" {
		return config.Default()
	}
	return o.Config
}

// openStore opens the configured item database, or an in-memory one.
func openStore(cfg config.Config) (*store.Store, error) {
	path := cfg.Database
	if path == "" {
		path = ":memory:"
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open item store %s: %w", path, err)
	}
	return st, nil
}

// loadRegistry builds a registry for one-shot lookups: no dispatcher, no
// scheduler, conflicts resolved.
func loadRegistry(ctx context.Context, cfg config.Config, catalog ir.Catalog, st *store.Store) (*effect.Registry, error) {
	mode, err := variable.ParseRoundingMode(cfg.RoundingMode)
	if err != nil {
		return nil, err
	}

	reg := effect.NewRegistry(
		effect.WithStorage(st),
		effect.WithLocalizer(i18n.NewLocalizer(nil, cfg.Locale)),
		effect.WithRounding(cfg.DecimalScale, mode),
		effect.WithDefaultCapacity(cfg.DefaultCapacity),
		effect.WithoutDriver(),
		effect.WithLogger(slog.Default()),
	)
	if err := reg.Load(catalog); err != nil {
		return nil, err
	}
	reg.Enable(ctx)
	return reg, nil
}
