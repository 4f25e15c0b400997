package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailrules/internal/gmailctl"
)

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import rules from other tools",
	}
	cmd.AddCommand(newImportGmailctlCmd(a))
	return cmd
}

func newImportGmailctlCmd(a *app) *cobra.Command {
	var (
		file      string
		binary    string
		configDir string
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "gmailctl",
		Short: "Convert compiled gmailctl filters into rules",
		Long: `Import reads the output of 'gmailctl compile --format=json', either by
running gmailctl or from a saved file, and appends one rule per filter that has
a single criterion and a supported action. Other filters are listed and skipped.

Examples:
  mailrules import gmailctl --dry-run
  mailrules import gmailctl --file filters.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			export, err := loadExport(ctx, file, gmailctl.Runner{Binary: binary, ConfigDir: configDir})
			if err != nil {
				return err
			}
			reqs, skipped := gmailctl.Convert(export)
			out := cmd.OutOrStdout()
			for _, s := range skipped {
				fmt.Fprintf(out, "skipped %s: %s\n", s.Filter, s.Reason)
			}
			if dryRun {
				for _, req := range reqs {
					fmt.Fprintf(out, "would add %s: %s contains %q -> %s %s\n",
						req.Name, req.Criteria.Field, req.Criteria.Value, req.Action, req.Value)
				}
				return nil
			}
			store, err := a.ruleStore()
			if err != nil {
				return err
			}
			for _, req := range reqs {
				rule, err := store.Append(ctx, req)
				if err != nil {
					return fmt.Errorf("import %s: %w", req.Name, err)
				}
				fmt.Fprintf(out, "added rule %d %s\n", rule.ID, rule.Name)
			}
			fmt.Fprintf(out, "imported %d rules, skipped %d filters\n", len(reqs), len(skipped))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&file, "file", "", "read a saved compile output instead of running gmailctl")
	flags.StringVar(&binary, "gmailctl", "gmailctl", "gmailctl binary")
	flags.StringVar(&configDir, "gmailctl-config", "", "gmailctl config directory")
	flags.BoolVar(&dryRun, "dry-run", false, "print the rules without storing them")
	return cmd
}

func loadExport(ctx context.Context, file string, runner gmailctl.Runner) (gmailctl.Export, error) {
	if file != "" {
		return gmailctl.ReadFile(file)
	}
	return runner.ExportFilters(ctx)
}
