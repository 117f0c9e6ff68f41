package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/glyph/internal/config"
	"github.com/roach88/glyph/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
	DB     string // database to record the catalog in
}

// CompilationResult holds the compiled catalog and its content hash.
type CompilationResult struct {
	Hash    string     `json:"hash"`
	Catalog ir.Catalog `json:"catalog"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	Effects   int
	Rarities  int
	Targets   int
	Groups    int
	Listeners int
	Tickers   int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <catalog>",
		Short: "Compile a CUE effect catalog to JSON",
		Long: `Compile a CUE effect catalog to its JSON form.

The catalog is compiled and validated, then printed (or written with
--output) together with its content hash. With --db the catalog is also
recorded in the item database so later runs can tell which catalog
version wrote an item's data.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&opts.DB, "db", "", "record the catalog in this SQLite database (defaults to GLYPH_DB)")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	catalog, err := loadValidCatalog(formatter, path)
	if err != nil {
		return err
	}
	for _, e := range catalog.Effects {
		formatter.VerboseLog("Compiled effect: %s", e.ID)
	}

	hash, err := ir.CatalogHash(*catalog)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}
	result := &CompilationResult{Hash: hash, Catalog: *catalog}

	cfg := opts.settings()
	if opts.DB != "" {
		cfg.Database = opts.DB
	}
	if cfg.Database != "" {
		if err := recordCatalog(commandContext(cmd), cfg, *catalog); err != nil {
			return outputCommandError(formatter, ErrCodeStore, err.Error())
		}
		formatter.VerboseLog("Recorded catalog %s in %s", hash, cfg.Database)
	}

	if opts.Output != "" {
		if err := writeCatalogToFile(result, opts.Output); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, calculateStats(catalog), opts.Output)
}

func recordCatalog(ctx context.Context, cfg config.Config, catalog ir.Catalog) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	_, err = st.SaveCatalog(ctx, catalog)
	return err
}

// calculateStats computes summary statistics from a compiled catalog.
func calculateStats(c *ir.Catalog) CompilationStats {
	stats := CompilationStats{
		Effects:  len(c.Effects),
		Rarities: len(c.Rarities),
		Targets:  len(c.Targets),
		Groups:   len(c.Groups),
	}
	for _, e := range c.Effects {
		if e.Trigger == nil {
			continue
		}
		stats.Listeners += len(e.Trigger.Listeners)
		stats.Tickers += len(e.Trigger.Tickers)
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d effect(s), %d rarity(ies), %d target(s), %d group(s)\n",
		stats.Effects, stats.Rarities, stats.Targets, stats.Groups)
	fmt.Fprintf(w, "  hash: %s\n\n", result.Hash)

	if len(result.Catalog.Effects) > 0 {
		fmt.Fprintln(w, "Effects:")
		for _, e := range result.Catalog.Effects {
			listeners, tickers := 0, 0
			if e.Trigger != nil {
				listeners, tickers = len(e.Trigger.Listeners), len(e.Trigger.Tickers)
			}
			fmt.Fprintf(w, "  %s: max level %d, %d limitation(s), %d listener(s), %d ticker(s)\n",
				e.ID, e.MaxLevel, len(e.Limitations), listeners, tickers)
		}
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote catalog to %s\n", outputFile)
	}
	return nil
}

// writeCatalogToFile writes the compilation result as indented JSON.
// Canonical JSON without indentation is used only for hashing.
func writeCatalogToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling catalog: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
