package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/rankreg/internal/presentation"
)

var (
	listFormat string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List services in rank order",
	Long: `List the services published by every configured source, best first.

The optional query filters services by attribute. Ranks are shown after the
source rank ceilings are applied.

Examples:
  # Everything, as a table
  rankreg list

  # As JSON, for jq
  rankreg list --format json | jq '.[].endpoint'

  # Only the best three services in the eu region
  rankreg list -n 3 'region = eu'`,
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

		dtos := make([]presentation.HandleDTO, 0)
		for h := range rt.registry.Handles(cmd.Context(), f) {
			dtos = append(dtos, presentation.FromHandle(h))
			if listLimit > 0 && len(dtos) == listLimit {
				break
			}
		}

		formatter := presentation.NewFormatter(cmd.OutOrStdout())
		switch listFormat {
		case "json":
			return formatter.FormatHandles(dtos)
		case "table":
			return formatter.FormatTable(dtos)
		default:
			return fmt.Errorf("unknown format %q (want table or json)", listFormat)
		}
	},
}

func init() {
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "Output format: table or json")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Show at most n services (0 = all)")
	rootCmd.AddCommand(listCmd)
}
