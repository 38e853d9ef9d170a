package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bazodiac/bafe/pkg/ruleset"
)

func (a *app) rulesetsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rulesets", Short: "Inspect calendrical rulesets"}
	cmd.AddCommand(a.rulesetsListCmd())
	cmd.AddCommand(a.rulesetsShowCmd())
	return cmd
}

func (a *app) rulesetsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available ruleset ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := ruleset.DefaultStore(a.cfg.RulesetDir).IDs()
			if err != nil {
				return exitf(exitUsage, "list rulesets: %v", err)
			}
			for _, id := range ids {
				if _, err := fmt.Fprintln(a.stdout, id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) rulesetsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a ruleset summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := a.rulesets().Get(args[0])
			if errors.Is(err, ruleset.ErrNotFound) || errors.Is(err, ruleset.ErrInvalidID) {
				return exitf(exitUsage, "unknown ruleset %q", args[0])
			}
			if err != nil {
				return exitf(exitUsage, "load ruleset: %v", err)
			}
			out, err := json.MarshalIndent(rs.Summary(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, string(out))
			return err
		},
	}
}
