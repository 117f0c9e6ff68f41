package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/glyph/internal/ir"
	"github.com/roach88/glyph/internal/limit"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Effect      string
	Context     string
	ItemType    string
	ItemID      string
	With        []string // effects already on the item, as effect=level
	Slot        string
	Actor       string
	World       string
	Permissions []string
	Attributes  []string // actor attributes, as key=value
}

// CheckResult is the outcome of checking one effect.
type CheckResult struct {
	Effect  string `json:"effect"`
	Context string `json:"context"`
	Pass    bool   `json:"pass"`
	Reason  string `json:"reason,omitempty"`
}

// ApplicableResult lists the effects that pass a context.
type ApplicableResult struct {
	Context string   `json:"context"`
	Effects []string `json:"effects"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <catalog>",
		Short: "Check whether an effect may apply to an item",
		Long: `Check an effect's limitations against an item and actor in a context.

Contexts are attain, merchant, anvil and use. Without --effect, lists
every effect that passes the context for the item.

Exit codes:
  0 - check passed
  1 - check failed
  2 - command error

Examples:
  glyph check ./catalog --effect flame --type DIAMOND_SWORD --with lifesteal=3
  glyph check ./catalog --effect lifesteal --type IRON_SWORD --context use --slot HAND --permission glyph.lifesteal
  glyph check ./catalog --type DIAMOND_SWORD`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Effect, "effect", "", "effect id (default: list applicable effects)")
	cmd.Flags().StringVarP(&opts.Context, "context", "c", "attain", "check context: attain, merchant, anvil, use")
	cmd.Flags().StringVar(&opts.ItemType, "type", "", "item type (required)")
	cmd.Flags().StringVar(&opts.ItemID, "id", "cli-item", "item id")
	cmd.Flags().StringSliceVar(&opts.With, "with", nil, "effects already applied, as effect=level")
	cmd.Flags().StringVar(&opts.Slot, "slot", "", "equipment slot the item occupies")
	cmd.Flags().StringVar(&opts.Actor, "actor", "cli-actor", "actor id")
	cmd.Flags().StringVar(&opts.World, "world", "world", "world the actor stands in")
	cmd.Flags().StringSliceVar(&opts.Permissions, "permission", nil, "permission nodes the actor holds")
	cmd.Flags().StringSliceVar(&opts.Attributes, "attr", nil, "actor attributes, as key=value")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runCheck(opts *CheckOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	lctx, err := limit.ParseContext(opts.Context)
	if err != nil {
		return outputCommandError(formatter, ErrCodeUsage, err.Error())
	}
	var slot ir.Slot
	if opts.Slot != "" {
		if slot, err = ir.ParseSlot(opts.Slot); err != nil {
			return outputCommandError(formatter, ErrCodeUsage, err.Error())
		}
	}
	levels, err := parseLevels(opts.With)
	if err != nil {
		return outputCommandError(formatter, ErrCodeUsage, err.Error())
	}
	attrs, err := parseAttributes(opts.Attributes)
	if err != nil {
		return outputCommandError(formatter, ErrCodeUsage, err.Error())
	}

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

	reg, err := loadRegistry(commandContext(cmd), cfg, *catalog, st)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, err.Error())
	}
	defer reg.Unload()

	item := &flagItem{id: opts.ItemID, typ: opts.ItemType, effects: levels}
	actor := &flagActor{
		id:          opts.Actor,
		world:       opts.World,
		permissions: toSet(opts.Permissions),
		attributes:  attrs,
	}

	if opts.Effect == "" {
		result := ApplicableResult{Context: lctx.Name, Effects: []string{}}
		for _, e := range reg.Applicable(lctx, item, actor) {
			result.Effects = append(result.Effects, e.ID())
		}
		return outputApplicable(formatter, result)
	}

	res, err := reg.Available(lctx, opts.Effect, item, actor, slot)
	if err != nil {
		return outputCommandError(formatter, ErrCodeUsage, err.Error())
	}
	formatter.VerboseLog("Checked %s in %s: %s", opts.Effect, lctx.Name, res)

	return outputCheckResult(formatter, CheckResult{
		Effect:  opts.Effect,
		Context: lctx.Name,
		Pass:    !res.IsFailure(),
		Reason:  res.Reason,
	})
}

func outputCheckResult(formatter *OutputFormatter, result CheckResult) error {
	if result.Pass {
		if formatter.JSON() {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "✓ %s may apply (%s)\n", result.Effect, result.Context)
		return nil
	}

	if formatter.JSON() {
		if err := formatter.Failure(ErrCodeCheckFailed, result.Reason, result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %s may not apply (%s): %s\n", result.Effect, result.Context, result.Reason)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("check failed: %s", result.Reason))
}

func outputApplicable(formatter *OutputFormatter, result ApplicableResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}
	if len(result.Effects) == 0 {
		fmt.Fprintf(formatter.Writer, "No effects apply (%s)\n", result.Context)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "Applicable effects (%s):\n", result.Context)
	for _, id := range result.Effects {
		fmt.Fprintf(formatter.Writer, "  %s\n", id)
	}
	return nil
}
