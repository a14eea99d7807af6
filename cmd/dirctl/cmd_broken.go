package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/brokenimage"
)

var (
	brokenCategory string
	brokenLimit    int
)

var brokenCmd = &cobra.Command{
	Use:   "broken",
	Short: "Inspect or reset the broken image registry",
}

var brokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List URLs excluded from image resolution",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		entries, total, err := a.Broken.List(cmd.Context(), brokenimage.ListFilter{
			Category: brokenCategory,
			Limit:    brokenLimit,
		})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tREPORTED BY\tSEEN\tURL")
		for _, e := range entries {
			cat := "*"
			if e.Category != nil {
				cat = string(*e.Category)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cat, e.ReportedBy, e.CreatedAt.Format("2006-01-02 15:04"), e.URL)
		}
		tw.Flush()
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entries\n", len(entries), total)
		return nil
	},
}

var brokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget broken URLs for --category, or all of them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Broken.Clear(cmd.Context(), brokenCategory)
		if err != nil {
			return err
		}
		logger.Info("broken registry cleared", zap.String("category", brokenCategory), zap.Int64("removed", n))
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
		return nil
	},
}

func init() {
	brokenCmd.PersistentFlags().StringVar(&brokenCategory, "category", "", "restrict to one category")
	brokenListCmd.Flags().IntVar(&brokenLimit, "limit", 100, "max entries to show")
	brokenCmd.AddCommand(brokenListCmd, brokenClearCmd)
}
