package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailrules/internal/rules"
	"github.com/joshsymonds/mailrules/internal/settings"
)

type debugDump struct {
	Store    string                `json:"store"`
	Fields   []rules.CriteriaField `json:"fields"`
	Actions  []rules.Action        `json:"actions"`
	Settings settings.Settings     `json:"settings"`
	Rules    []rules.Rule          `json:"rules"`
}

func newDebugCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Print enums, settings and every stored rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ruleStore, err := a.ruleStore()
			if err != nil {
				return err
			}
			settingsStore, err := a.settingsStore()
			if err != nil {
				return err
			}
			ruleSet, err := ruleStore.List(ctx)
			if err != nil {
				return err
			}
			s, err := settingsStore.Load(ctx)
			if err != nil {
				return err
			}
			dump := debugDump{
				Store:    fmt.Sprintf("%s %s", a.cfg.Store.Backend, a.cfg.Store.Path),
				Fields:   rules.AllFields(),
				Actions:  rules.AllActions(),
				Settings: s,
				Rules:    ruleSet,
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), dump)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store:    %s\n", dump.Store)
			fmt.Fprintf(out, "fields:   %s\n", joinStrings(dump.Fields))
			fmt.Fprintf(out, "actions:  %s\n", joinStrings(dump.Actions))
			fmt.Fprintln(out)
			writeSettings(cmd, s)
			fmt.Fprintln(out)
			for _, r := range ruleSet {
				if err := writeRule(out, r); err != nil {
					return err
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%d rules\n", len(ruleSet))
			return nil
		},
	}
}
