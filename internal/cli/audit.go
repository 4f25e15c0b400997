package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailrules/internal/audit"
	"github.com/joshsymonds/mailrules/internal/runtime"
)

func newAuditCmd(a *app) *cobra.Command {
	var (
		mostRecent int
		topN       int
		jsonPath   string
		failOn     string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Replay rules over recent mail without changing anything",
		Long: `Audit evaluates every stored rule over the most recent inbox threads and
reports match counts, noisy senders no rule covers, and lint findings:
dead rules, invalid rules, missing labels and label/delete conflicts.

With --fail-on, the command exits non-zero when any listed finding is present.

Examples:
  mailrules audit
  mailrules audit --json audit.json --fail-on dead,conflict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conditions, err := audit.ParseFailOn(failOn)
			if err != nil {
				return err
			}
			ruleStore, err := a.ruleStore()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("most-recent") {
				settingsStore, err := a.settingsStore()
				if err != nil {
					return err
				}
				s, err := settingsStore.Load(ctx)
				if err != nil {
					return err
				}
				mostRecent = s.MostRecentMails
			}
			client, limiter, stop, err := a.gmailClient(ctx, runtime.ScopeReadonly)
			if err != nil {
				return err
			}
			defer stop()

			svc := audit.NewService(client, limiter, a.logger, ruleStore)
			rep, err := svc.Run(ctx, audit.Options{MostRecent: mostRecent, TopN: topN})
			if err != nil {
				return fmt.Errorf("run audit: %w", err)
			}
			if jsonPath != "" {
				if err := audit.WriteJSON(rep, jsonPath); err != nil {
					return err
				}
			}
			if a.jsonOutput() {
				if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
			} else if err := audit.PrintHuman(rep, cmd.OutOrStdout()); err != nil {
				return err
			}
			lint := audit.LintReport{Total: rep.Total, Findings: rep.Findings}
			if lint.ShouldFail(conditions) {
				return fmt.Errorf("audit failed on %v", conditions)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&mostRecent, "most-recent", 0, "threads to replay (default: settings mostRecentMails)")
	flags.IntVar(&topN, "top", 20, "number of sender domains to rank")
	flags.StringVar(&jsonPath, "json", "", "also write the report as JSON to this relative path")
	flags.StringVar(&failOn, "fail-on", "", "comma separated findings that fail the command: dead, invalid, missing-label, conflict")
	return cmd
}
