package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	enrichID    string
	enrichLimit int
	enrichJSON  bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fill ratings, contacts and photos from Google Places",
	Long: `Enriches one listing with --id, or up to --limit listings that have never
been enriched. Batch runs hold a cluster-wide lock.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if enrichID != "" {
			res, err := a.Enricher.EnrichListing(cmd.Context(), enrichID)
			if err != nil {
				return err
			}
			if enrichJSON {
				return writeJSON(out, res)
			}
			fmt.Fprintf(out, "%s: matched=%t photos=%d email=%t\n",
				enrichID, res.Matched, res.PhotosMirrored, res.EmailFound)
			return nil
		}

		res, err := a.Enricher.EnrichPending(cmd.Context(), enrichLimit)
		if err != nil {
			return err
		}
		logger.Info("enrichment batch finished",
			zap.Int("attempted", res.Attempted),
			zap.Int("enriched", res.Enriched),
			zap.Int("no_match", res.NoMatch),
			zap.Int("failed", res.Failed),
			zap.Duration("duration", res.Duration))
		fmt.Fprintf(out, "attempted %d: %d enriched, %d no match, %d failed\n",
			res.Attempted, res.Enriched, res.NoMatch, res.Failed)
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichID, "id", "", "enrich a single listing")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max listings per batch (default enrichment.batch_size)")
	enrichCmd.Flags().BoolVar(&enrichJSON, "json", false, "print the outcome as JSON")
}
