package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/glyph/internal/host"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Effect   string
	Variable string
	Level    int
	Unit     bool
	Item     string // item id for Modifiable variables
}

// EvalResult holds evaluated variables by name.
type EvalResult struct {
	Effect string         `json:"effect"`
	Level  int            `json:"level"`
	Values map[string]any `json:"values"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <catalog>",
		Short: "Evaluate an effect's variables at a level",
		Long: `Evaluate one variable, or every variable, of an effect at a level.

Modifiable variables read the item given with --item from the item
database (GLYPH_DB); without --item they render as "?".

Examples:
  glyph eval ./catalog --effect lifesteal --var heal --level 3
  glyph eval ./catalog --effect lifesteal --level 2 --unit`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Effect, "effect", "", "effect id (required)")
	cmd.Flags().StringVar(&opts.Variable, "var", "", "variable name (default: all variables)")
	cmd.Flags().IntVar(&opts.Level, "level", 1, "effect level")
	cmd.Flags().BoolVar(&opts.Unit, "unit", false, "append leveled variable units")
	cmd.Flags().StringVar(&opts.Item, "item", "", "item id for Modifiable variables")
	_ = cmd.MarkFlagRequired("effect")

	return cmd
}

func runEval(opts *EvalOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	catalog, err := loadValidCatalog(formatter, path)
	if err != nil {
		return err
	}

	cfg := opts.settings()
	st, err := openStore(cfg)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStore, err.Error())
	}
	defer st.Close()

	ctx := commandContext(cmd)
	reg, err := loadRegistry(ctx, cfg, *catalog, st)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}
	defer reg.Unload()

	e, ok := reg.Effect(opts.Effect)
	if !ok {
		return outputCommandError(formatter, ErrCodeUsage, fmt.Sprintf("unknown effect %q", opts.Effect))
	}

	var item host.Item
	if opts.Item != "" {
		item = &flagItem{id: opts.Item, effects: map[string]int{opts.Effect: opts.Level}}
	}

	result := EvalResult{Effect: opts.Effect, Level: opts.Level}
	if opts.Variable != "" {
		value, err := reg.Evaluate(opts.Effect, opts.Variable, opts.Level, item, opts.Unit)
		if err != nil {
			return outputCommandError(formatter, ErrCodeUsage, err.Error())
		}
		result.Values = map[string]any{opts.Variable: value}
	} else {
		result.Values = e.Variables.EvaluateAll(opts.Level, item, opts.Unit)
	}

	return outputEvalSuccess(formatter, result)
}

func outputEvalSuccess(formatter *OutputFormatter, result EvalResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	names := make([]string, 0, len(result.Values))
	for name := range result.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(formatter.Writer, "%s = %v\n", name, result.Values[name])
	}
	return nil
}
