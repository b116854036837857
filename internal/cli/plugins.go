package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pic-analyzer/internal/plugin"
)

func (a *App) pluginsCommand() *cobra.Command {
	var (
		category string
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List the available plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := plugin.ParseCategory(category)
			if err != nil {
				return err
			}
			reg, err := a.plugins(cmd.Context())
			if err != nil {
				return err
			}

			out := newPrinter(cmd.OutOrStdout())
			for _, p := range reg.List(cat) {
				source, _ := reg.Source(p.Name())
				out.line(out.s.Title, "%s", p.Name())
				out.line(out.s.Muted, "  %s  %s", p.Capability(), source)
				if p.Description() != "" {
					out.line(out.s.Path, "  %s", p.Description())
				}
				if verbose {
					for _, param := range p.Schema().Parameters {
						out.line(out.s.Muted, "    %s", describeParameter(param))
					}
				}
			}

			for _, name := range reg.Conflicts() {
				out.line(out.s.Warning, "conflict: %q is defined more than once and was dropped", name)
			}
			for _, lerr := range reg.LoadErrors() {
				out.line(out.s.Error, "load error: %v", lerr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter, sort, group, general or all")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show each plugin's parameters")
	return cmd
}

func describeParameter(p plugin.Parameter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", p.Name, p.Type)
	if p.Default != nil {
		fmt.Fprintf(&b, " default=%v", p.Default)
	}
	if p.Min != nil || p.Max != nil {
		lo, hi := "-inf", "+inf"
		if p.Min != nil {
			lo = fmt.Sprint(*p.Min)
		}
		if p.Max != nil {
			hi = fmt.Sprint(*p.Max)
		}
		fmt.Fprintf(&b, " range=[%s, %s]", lo, hi)
	}
	if len(p.Options) > 0 {
		fmt.Fprintf(&b, " options=%s", strings.Join(p.Options, "|"))
	}
	return b.String()
}
