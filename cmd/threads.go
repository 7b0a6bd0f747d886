package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forumkita/marketpulse/internal/model"
	"github.com/forumkita/marketpulse/pkg/forum"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect market-enabled threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List market-enabled threads and their analytics state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		threads, err := listMarketThreads(cmd.Context(), initForum())
		if err != nil {
			return eris.Wrap(err, "threads list")
		}

		if len(threads) == 0 {
			fmt.Fprintln(os.Stderr, "No market-enabled threads found.")
			return nil
		}

		formatThreads(os.Stdout, threads)
		return nil
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Show a thread's full market state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		threads, err := listMarketThreads(cmd.Context(), initForum())
		if err != nil {
			return eris.Wrap(err, "threads show")
		}

		for _, t := range threads {
			if t.ID == args[0] {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(t.ExtendedData.Market)
			}
		}
		return eris.Errorf("thread %s not found or not market-enabled", args[0])
	},
}

func init() {
	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsShowCmd)
	rootCmd.AddCommand(threadsCmd)
}

// listMarketThreads pages through all threads and keeps the market-enabled
// ones.
func listMarketThreads(ctx context.Context, fc forum.Client) ([]model.Thread, error) {
	var out []model.Thread
	cursor := ""
	for {
		page, err := fc.ListThreads(ctx, forum.ThreadListParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}
		for _, t := range page.Threads {
			if t.ExtendedData.Market != nil && t.ExtendedData.Market.MarketEnabled {
				out = append(out, t)
			}
		}
		cursor = page.NextThreadCursor
		if cursor == "" {
			return out, nil
		}
	}
}

func formatThreads(out io.Writer, threads []model.Thread) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tVALID\tTHRESHOLD\tLOCKED\tLAST SCAN")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t---------\t------\t---------")

	for _, t := range threads {
		m := t.ExtendedData.Market
		lastScan := "-"
		if !m.LastProcessed.At.IsZero() {
			lastScan = m.LastProcessed.At.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%v\t%s\n",
			t.ID,
			m.MarketType(),
			m.ValidCount,
			m.ThresholdValid,
			m.Analytics.Locked,
			lastScan,
		)
	}
	_ = w.Flush()
}
