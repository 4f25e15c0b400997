package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailrules/internal/rules"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage stored rules",
		Long:  `List, create, update and delete the rules applied to the inbox.`,
	}
	cmd.AddCommand(
		newRulesListCmd(a),
		newRulesShowCmd(a),
		newRulesAddCmd(a),
		newRulesUpdateCmd(a),
		newRulesRemoveCmd(a),
		newRulesEnumsCmd(a),
	)
	return cmd
}

func newRulesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List rules in evaluation order",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.ruleStore()
			if err != nil {
				return err
			}
			ruleSet, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), ruleSet)
			}
			if len(ruleSet) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no rules")
				return nil
			}
			return writeRuleTable(cmd.OutOrStdout(), ruleSet)
		},
	}
}

func newRulesShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			store, err := a.ruleStore()
			if err != nil {
				return err
			}
			rule, err := store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), rule)
			}
			return writeRule(cmd.OutOrStdout(), rule)
		},
	}
}

// ruleFlags holds the flag values shared by add and update.
type ruleFlags struct {
	name        string
	description string
	field       string
	contains    string
	action      string
	value       string
	disabled    bool
	priority    int
}

func (f *ruleFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.name, "name", "", "rule name")
	flags.StringVar(&f.description, "description", "", "free-form description")
	flags.StringVar(&f.field, "field", "", "criteria field (see 'rules enums')")
	flags.StringVar(&f.contains, "contains", "", "text the field must contain")
	flags.StringVar(&f.action, "action", "", "action: label, delete, markRead")
	flags.StringVar(&f.value, "value", "", "label name for the label action")
	flags.BoolVar(&f.disabled, "disabled", false, "store the rule disabled")
	flags.IntVar(&f.priority, "priority", 0, "stored priority (not used for ordering)")
}

func newRulesAddCmd(a *app) *cobra.Command {
	var f ruleFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a rule",
		Long: `Create a rule. Omitted fields take defaults: name "Unnamed Rule",
criteria "from contains ''", action label, enabled.

Examples:
  mailrules rules add --name receipts --field from --contains billing@shop.test --action label --value Receipts
  mailrules rules add --field subjectContains --contains "WIN BIG" --action delete`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := rules.CreateRuleRequest{
				Name:        f.name,
				Description: f.description,
				Action:      rules.Action(f.action),
				Value:       f.value,
				Priority:    f.priority,
			}
			if cmd.Flags().Changed("field") || cmd.Flags().Changed("contains") {
				crit := rules.DefaultCriteria()
				if f.field != "" {
					crit.Field = rules.CriteriaField(f.field)
				}
				crit.Value = f.contains
				req.Criteria = &crit
			}
			if cmd.Flags().Changed("disabled") {
				enabled := !f.disabled
				req.Enabled = &enabled
			}
			store, err := a.ruleStore()
			if err != nil {
				return err
			}
			rule, err := store.Append(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), rule)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created rule %d\n", rule.ID)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newRulesUpdateCmd(a *app) *cobra.Command {
	var (
		f      ruleFlags
		enable bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace fields of a rule",
		Long: `Update a rule. Flags that are not given keep the rule's current value;
the stored rule is then replaced as a whole.

Examples:
  mailrules rules update 3 --disabled
  mailrules rules update 3 --enabled --value Receipts/2024`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			store, err := a.ruleStore()
			if err != nil {
				return err
			}
			current, err := store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			req := overlayRule(current, f, cmd.Flags().Changed)
			if cmd.Flags().Changed("enabled") {
				req.Enabled = enable
			}
			rule, err := store.Replace(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), rule)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated rule %d\n", rule.ID)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&enable, "enabled", false, "enable the rule")
	cmd.MarkFlagsMutuallyExclusive("enabled", "disabled")
	return cmd
}

// overlayRule builds a full replacement from current and the flags that
// were set.
func overlayRule(current rules.Rule, f ruleFlags, changed func(string) bool) rules.UpdateRuleRequest {
	req := rules.UpdateRuleRequest{
		Name:        current.Name,
		Description: current.Description,
		Criteria:    current.Criteria,
		Action:      current.Action,
		Value:       current.Value,
		Enabled:     current.Enabled,
		Priority:    current.Priority,
	}
	if changed("name") {
		req.Name = f.name
	}
	if changed("description") {
		req.Description = f.description
	}
	if changed("field") {
		req.Criteria.Field = rules.CriteriaField(f.field)
	}
	if changed("contains") {
		req.Criteria.Value = f.contains
	}
	if changed("action") {
		req.Action = rules.Action(f.action)
	}
	if changed("value") {
		req.Value = f.value
	}
	if changed("disabled") {
		req.Enabled = !f.disabled
	}
	if changed("priority") {
		req.Priority = f.priority
	}
	return req
}

func newRulesRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Short:   "Delete a rule",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			store, err := a.ruleStore()
			if err != nil {
				return err
			}
			if err := store.Remove(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed rule %d\n", id)
			return nil
		},
	}
}

type enums struct {
	Fields  []rules.CriteriaField `json:"fields"`
	Actions []rules.Action        `json:"actions"`
}

func newRulesEnumsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "enums",
		Short: "List criteria fields and actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := enums{Fields: rules.AllFields(), Actions: rules.AllActions()}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), e)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fields:  %s\nactions: %s\n", joinStrings(e.Fields), joinStrings(e.Actions))
			return nil
		},
	}
}
