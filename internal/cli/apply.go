package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailrules/internal/engine"
	"github.com/joshsymonds/mailrules/internal/runtime"
)

func newApplyCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply enabled rules to the most recent inbox threads once",
		Long: `Apply reads the settings and rules, fetches the most recent inbox threads
and runs every matching enabled rule on every message.

With --dry-run, matches are reported and nothing in the mailbox changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, stop, err := a.engine(cmd, dryRun)
			if err != nil {
				return err
			}
			defer stop()
			res, err := svc.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("apply rules: %w", err)
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			writeResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report matches without changing the mailbox")
	return cmd
}

// engine wires an evaluation service to the configured stores and Gmail.
func (a *app) engine(cmd *cobra.Command, dryRun bool) (*engine.Service, func(), error) {
	ruleStore, err := a.ruleStore()
	if err != nil {
		return nil, nil, err
	}
	settingsStore, err := a.settingsStore()
	if err != nil {
		return nil, nil, err
	}
	scope := runtime.ScopeLabels
	if dryRun {
		scope = runtime.ScopeReadonly
	}
	client, limiter, stop, err := a.gmailClient(cmd.Context(), scope)
	if err != nil {
		return nil, nil, err
	}
	svc := engine.NewService(client, limiter, a.logger, ruleStore, settingsStore)
	svc.DryRun = dryRun
	return svc, stop, nil
}

func writeResult(cmd *cobra.Command, res engine.Result) {
	verb := "performed"
	if res.DryRun {
		verb = "would perform"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d threads, %d messages, %d matches; %s %d actions\n",
		res.Threads, res.Messages, res.Matches, verb, res.Actions)
}
