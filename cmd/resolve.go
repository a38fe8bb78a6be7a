package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/rankreg/internal/presentation"
	"github.com/zjrosen/rankreg/internal/watch"
)

var resolveJSON bool

var resolveCmd = &cobra.Command{
	Use:   "resolve [query]",
	Short: "Print the endpoint of the best matching service",
	Long: `Resolve the best available service matching the query and print its endpoint.

Lookups go through the generation cache and the sticky and traced decorators
when the matching feature flags are enabled.

Examples:
  rankreg resolve 'name = db'
  rankreg resolve --json 'tags ~ primary and region = eu'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		f, err := rt.registry.Compile(strings.Join(args, " "))
		if err != nil {
			return err
		}

		imp, err := rt.registry.First(cmd.Context(), f)
		if err != nil {
			return err
		}
		desc, err := imp.Get()
		if err != nil {
			return fmt.Errorf("acquire service: %w", err)
		}
		defer imp.Unget()

		if resolveJSON {
			id, _ := watch.IdentityOf(imp)
			dto := presentation.FromAttributes(id, imp.Attributes(), true)
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatHandles([]presentation.HandleDTO{dto})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), desc.Endpoint)
		return err
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "Print the full service as JSON")
	rootCmd.AddCommand(resolveCmd)
}
