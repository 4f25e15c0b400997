package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailrules/internal/settings"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change auto-apply settings",
	}
	cmd.AddCommand(newSettingsShowCmd(a), newSettingsSetCmd(a))
	return cmd
}

func newSettingsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.settingsStore()
			if err != nil {
				return err
			}
			s, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), s)
			}
			writeSettings(cmd, s)
			return nil
		},
	}
}

func newSettingsSetCmd(a *app) *cobra.Command {
	var (
		autoApply  bool
		interval   int
		mostRecent int
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings",
		Long: fmt.Sprintf(`Change settings. Flags that are not given keep their stored value.
The interval must be one of %v hours and the mail count must be positive.
A running 'mailrules run' daemon picks the change up on its next settings poll.

Examples:
  mailrules settings set --auto-apply --interval 4
  mailrules settings set --auto-apply=false
  mailrules settings set --most-recent 100`, settings.AllowedIntervals()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.settingsStore()
			if err != nil {
				return err
			}
			current, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			req := settings.UpdateSettingsRequest{
				EnableAutoApply:        current.EnableAutoApply,
				AutoApplyIntervalHours: current.AutoApplyIntervalHours,
				MostRecentMails:        current.MostRecentMails,
			}
			flags := cmd.Flags()
			if flags.Changed("auto-apply") {
				req.EnableAutoApply = autoApply
			}
			if flags.Changed("interval") {
				req.AutoApplyIntervalHours = interval
			}
			if flags.Changed("most-recent") {
				req.MostRecentMails = mostRecent
			}
			saved, err := store.Save(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), saved)
			}
			writeSettings(cmd, saved)
			if saved.EnableAutoApply {
				fmt.Fprintf(cmd.OutOrStdout(), "auto-apply runs every %d hours while 'mailrules run' is active\n",
					saved.AutoApplyIntervalHours)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "auto-apply is off; the scheduled pass will be removed")
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&autoApply, "auto-apply", false, "run the rules on a schedule")
	flags.IntVar(&interval, "interval", 0, "hours between scheduled passes")
	flags.IntVar(&mostRecent, "most-recent", 0, "number of recent inbox threads each pass reads")
	return cmd
}

func writeSettings(cmd *cobra.Command, s settings.Settings) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "auto-apply:     %t\n", s.EnableAutoApply)
	fmt.Fprintf(out, "interval hours: %d\n", s.AutoApplyIntervalHours)
	fmt.Fprintf(out, "most recent:    %d\n", s.MostRecentMails)
}
