package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forumkita/marketpulse/internal/store"
)

var leasesCmd = &cobra.Command{
	Use:   "leases",
	Short: "Inspect and clean up thread leases",
}

var leasesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active thread leases",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		leases, err := st.ListLeases(ctx)
		if err != nil {
			return eris.Wrap(err, "leases list")
		}

		if len(leases) == 0 {
			fmt.Fprintln(os.Stderr, "No leases held.")
			return nil
		}

		formatLeases(os.Stdout, leases)
		return nil
	},
}

var leasesClearCmd = &cobra.Command{
	Use:   "clear-expired",
	Short: "Delete expired thread leases",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := st.DeleteExpiredLeases(ctx)
		if err != nil {
			return eris.Wrap(err, "leases clear-expired")
		}

		fmt.Printf("Deleted %d expired lease(s).\n", n)
		return nil
	},
}

func init() {
	leasesCmd.AddCommand(leasesListCmd)
	leasesCmd.AddCommand(leasesClearCmd)
	rootCmd.AddCommand(leasesCmd)
}

func formatLeases(out io.Writer, leases []store.Lease) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "THREAD\tOWNER\tACQUIRED\tEXPIRES")
	_, _ = fmt.Fprintln(w, "------\t-----\t--------\t-------")

	now := time.Now().UTC()
	for _, l := range leases {
		expires := l.ExpiresAt.Format("15:04:05")
		if l.ExpiresAt.Before(now) {
			expires += " (expired)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			l.ThreadID,
			truncateID(l.Owner),
			l.AcquiredAt.Format("2006-01-02 15:04:05"),
			expires,
		)
	}
	_ = w.Flush()
}
