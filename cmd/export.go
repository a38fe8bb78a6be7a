package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/rankreg/internal/source"
)

var (
	exportEndpoint string
	exportVersion  string
	exportRanking  int
	exportAttrs    []string
)

var exportCmd = &cobra.Command{
	Use:   "export NAME",
	Short: "Publish a service into the writable source",
	Long: `Write a descriptor for a new service into the source marked writable.

Attributes are given as key=value. Values that parse as integers, floats or
booleans are stored as such.

Examples:
  rankreg export api --endpoint http://api:8080 --ranking 5
  rankreg export db --endpoint postgres://db:5432 --version 1.4.2 -a region=eu -a primary=true`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs, err := parseAttrs(exportAttrs)
		if err != nil {
			return err
		}

		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		desc := &source.Descriptor{
			Name:       args[0],
			Endpoint:   exportEndpoint,
			Version:    exportVersion,
			Ranking:    exportRanking,
			Attributes: attrs,
		}
		h, err := rt.registry.Export(desc)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %s as %s (rank %d)\n", desc.Name, h.ID(), h.Rank())
		return err
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportEndpoint, "endpoint", "", "Service endpoint")
	exportCmd.Flags().StringVar(&exportVersion, "version", "", "Service version")
	exportCmd.Flags().IntVar(&exportRanking, "ranking", 0, "Service ranking (higher wins)")
	exportCmd.Flags().StringArrayVarP(&exportAttrs, "attr", "a", nil, "Attribute as key=value (repeatable)")
	rootCmd.AddCommand(exportCmd)
}

// parseAttrs turns key=value pairs into typed attributes.
func parseAttrs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	attrs := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q (want key=value)", p)
		}
		attrs[key] = typedValue(value)
	}
	return attrs, nil
}

func typedValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
