package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zjrosen/rankreg/internal/config"
)

var (
	sourceMaxRank  int
	sourceWritable bool
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage the configured descriptor directories",
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources in priority order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "NAME\tDIR\tMAX RANK\tWRITABLE")
		for _, s := range cfg.Sources {
			maxRank := "-"
			if s.MaxRank != nil {
				maxRank = strconv.Itoa(*s.MaxRank)
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", s.Name, s.Dir, maxRank, s.Writable)
		}
		return tw.Flush()
	},
}

var sourceAddCmd = &cobra.Command{
	Use:   "add NAME DIR",
	Short: "Add or replace a source",
	Long: `Add a descriptor directory to the configuration, or replace the source with
the same name. New sources have the lowest priority.

Examples:
  rankreg source add local ./services --writable
  rankreg source add shared /etc/rankreg/services --max-rank 100`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolve dir: %w", err)
		}
		src := config.SourceConfig{Name: args[0], Dir: dir, Writable: sourceWritable}
		if cmd.Flags().Changed("max-rank") {
			maxRank := sourceMaxRank
			src.MaxRank = &maxRank
		}

		path := configPath()
		if err := config.AddSource(path, src, cfg.Sources); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added source %s (%s) to %s\n", src.Name, src.Dir, path)
		return err
	},
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if err := config.RemoveSource(path, args[0], cfg.Sources); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Removed source %s from %s\n", args[0], path)
		return err
	},
}

func init() {
	sourceAddCmd.Flags().IntVar(&sourceMaxRank, "max-rank", 0, "Cap the rank of services from this source")
	sourceAddCmd.Flags().BoolVar(&sourceWritable, "writable", false, "Make this the source exports are written to")

	sourceCmd.AddCommand(sourceListCmd, sourceAddCmd, sourceRemoveCmd)
	rootCmd.AddCommand(sourceCmd)
}
