package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/patchtroll/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded reviews",
	Long:  `List the reviews kept in the review ledger, newest first.`,
	Args:  cobra.NoArgs,
	Run:   runHistory,
}

var (
	historyLimit  int
	historyChange int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "n", "n", 20, "Limit the number of reviews to show")
	historyCmd.Flags().IntVar(&historyChange, "change", 0, "Show every review of this change, oldest first")
}

func runHistory(cmd *cobra.Command, args []string) {
	c := initContextWithLedger()
	defer c.Close()

	if c.Ledger == nil {
		exitError("no ledger configured (set daemon.ledger_path or pass --ledger)")
	}

	var (
		records []*models.ReviewRecord
		err     error
	)
	if historyChange > 0 {
		records, err = c.Ledger.ReviewsForChange(historyChange)
	} else {
		records, err = c.Ledger.RecentReviews(historyLimit)
	}
	if err != nil {
		exitError("failed to read ledger: %v", err)
	}

	if last, err := c.Ledger.LastRun(); err == nil && !last.IsZero() {
		fmt.Printf("Last run: %s\n\n", last.Local().Format("Mon Jan 2 15:04:05 2006"))
	}

	if len(records) == 0 {
		fmt.Println("No reviews recorded")
		return
	}
	printHistory(os.Stdout, records)
}

func printHistory(w io.Writer, records []*models.ReviewRecord) {
	yellow := color.New(color.FgYellow)
	magenta := color.New(color.FgMagenta)
	red := color.New(color.FgRed)

	for _, r := range records {
		yellow.Fprintf(w, "change %d/%d", r.Change, r.Revision)
		if r.DryRun {
			magenta.Fprint(w, " [dry-run]")
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Date:   %s\n", r.PostedAt.Local().Format("Mon Jan 2 15:04:05 2006"))
		if r.Vote < 0 {
			red.Fprintf(w, "Vote:   %+d", r.Vote)
			fmt.Fprintln(w)
		} else {
			fmt.Fprintf(w, "Vote:   %+d\n", r.Vote)
		}
		fmt.Fprintf(w, "Kinds:  %s\n", strings.Join(r.Kinds, ", "))
		fmt.Fprintf(w, "\n    %s\n\n", r.Subject)
	}
}
