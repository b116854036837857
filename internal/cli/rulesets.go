package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pic-analyzer/internal/database"
)

func (a *App) ruleSetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rulesets",
		Aliases: []string{"rule-sets"},
		Short:   "Manage rule sets saved for a folder",
	}

	list := &cobra.Command{
		Use:   "list <dir>",
		Short: "List the rule sets saved for a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			db, err := a.database(cmd.Context())
			if err != nil {
				return err
			}
			sets, err := db.RuleSets(cmd.Context(), root)
			if err != nil && !errors.Is(err, database.ErrCacheMiss) {
				return err
			}

			out := newPrinter(cmd.OutOrStdout())
			if len(sets) == 0 {
				out.line(out.s.Muted, "No rule sets saved for %s", root)
				return nil
			}
			for _, set := range sets {
				out.line(out.s.Path, "%s  %s", set.Name, out.s.Muted.Render(set.UpdatedAt.Format("2006-01-02 15:04")))
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <dir> <name>",
		Short: "Print a saved rule set as YAML",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			db, err := a.database(cmd.Context())
			if err != nil {
				return err
			}
			data, err := db.LoadRuleSet(cmd.Context(), root, args[1])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	remove := &cobra.Command{
		Use:     "delete <dir> <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved rule set",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			db, err := a.database(cmd.Context())
			if err != nil {
				return err
			}
			if err := db.DeleteRuleSet(cmd.Context(), root, args[1]); err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			out.line(out.s.Success, "Deleted rule set %q", args[1])
			return nil
		},
	}

	cmd.AddCommand(list, show, remove)
	return cmd
}
