package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pic-analyzer/internal/filesystem"
	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/pipeline"
	"pic-analyzer/internal/plugin"
	"pic-analyzer/internal/rules"
)

func (a *App) applyCommand() *cobra.Command {
	var (
		rulesFile string
		ruleSet   string
		saveAs    string
		metrics   []string
		moveTo    string
		conflict  string
	)

	cmd := &cobra.Command{
		Use:   "apply <dir>",
		Short: "Filter, sort and group a folder with a rule file",
		Long: `Scan a folder, run every plugin over its images and apply a rule
configuration. Rules come from a YAML, TOML or JSON file (--rules) or from a
rule set saved earlier for the same folder (--rule-set).

With --move-to the kept images are moved into that folder, one
subfolder per group when the rules name a grouper.

Example rule file:

` + indent(rules.Example, "  "),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (rulesFile == "") == (ruleSet == "") {
				return errors.New("exactly one of --rules or --rule-set is required")
			}
			policy, err := filesystem.ParseConflictPolicy(conflict)
			if err != nil {
				return err
			}
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			db, err := a.database(ctx)
			if err != nil {
				return err
			}

			var set *rules.Set
			if rulesFile != "" {
				set, err = rules.Load(rulesFile)
			} else {
				var data []byte
				data, err = db.LoadRuleSet(ctx, root, ruleSet)
				if err == nil {
					set, err = rules.Parse(data, rules.FormatYAML)
				}
			}
			if err != nil {
				return err
			}

			reg, err := a.plugins(ctx)
			if err != nil {
				return err
			}
			cfg, err := set.Resolve(reg)
			if err != nil {
				return err
			}

			errOut := newPrinter(cmd.ErrOrStderr())
			items, err := a.scan(ctx, root, errOut, true)
			if err != nil {
				return err
			}

			analyzer, err := a.analyzer(ctx, root)
			if err != nil {
				return err
			}
			items, err = analyzer.Analyze(ctx, items, reg.List(plugin.CategoryAll))
			if err != nil {
				return err
			}

			result, err := pipeline.Apply(ctx, items, cfg)
			if err != nil {
				return err
			}
			printGroups(newPrinter(cmd.OutOrStdout()), result, metrics)

			if moveTo != "" {
				if err := moveGroups(errOut, result, moveTo, cfg.Group != nil, policy); err != nil {
					return err
				}
			}

			if saveAs != "" {
				data, err := set.Marshal(rules.FormatYAML)
				if err != nil {
					return err
				}
				if err := db.SaveRuleSet(ctx, root, saveAs, data); err != nil {
					return err
				}
				errOut.line(errOut.s.Success, "Saved rule set %q", saveAs)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&rulesFile, "rules", "r", "", "rule file (.yaml, .toml or .json)")
	cmd.Flags().StringVar(&ruleSet, "rule-set", "", "name of a rule set saved for this folder")
	cmd.Flags().StringVar(&saveAs, "save-as", "", "save the rules under this name for this folder")
	cmd.Flags().StringSliceVarP(&metrics, "show", "m", nil, "metric keys to print next to each image")
	cmd.Flags().StringVar(&moveTo, "move-to", "", "move the kept images into this folder")
	cmd.Flags().StringVar(&conflict, "on-conflict", "fail", "when a moved file exists: fail, overwrite, rename or skip")
	return cmd
}

// moveGroups moves every grouped item under dest, into a subfolder named
// after its group when byGroup is set.
func moveGroups(out *printer, result pipeline.Result, dest string, byGroup bool, policy filesystem.ConflictPolicy) error {
	var moved, skipped int
	for _, g := range result.Groups {
		dir := dest
		if byGroup {
			dir = filepath.Join(dest, groupDir(g.Key))
		}
		for _, item := range g.Items {
			got, err := filesystem.Move(item.Path, filepath.Join(dir, filepath.Base(item.Path)), policy)
			if err != nil {
				return err
			}
			if got == "" {
				skipped++
				continue
			}
			moved++
		}
	}
	out.line(out.s.Success, "Moved %d images to %s (%d skipped)", moved, dest, skipped)
	return nil
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// groupDir turns a group key into a single path element.
func groupDir(key string) string {
	key = strings.TrimSpace(strings.NewReplacer("/", "-", "\\", "-", ":", "-").Replace(key))
	if key == "" || key == "." || key == ".." {
		return "_"
	}
	return key
}

func printGroups(out *printer, result pipeline.Result, keys []string) {
	for _, g := range result.Groups {
		out.line(out.s.Group, "%s (%d)", g.Key, len(g.Items))
		for _, item := range g.Items {
			out.line(out.s.Path, "  %s%s", item.Path, out.s.Muted.Render(metricSuffix(item, keys)))
		}
	}
}

func metricSuffix(item mediatypes.Item, keys []string) string {
	var s string
	for _, key := range keys {
		if item.HasMetric(key) {
			s += fmt.Sprintf("  %s=%v", key, item.Metric(key))
		}
	}
	return s
}
