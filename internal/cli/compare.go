package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/patchtroll/internal/gitsrc"
	"github.com/kilupskalvis/patchtroll/internal/patch"
)

var compareCmd = &cobra.Command{
	Use:   "compare <upstream-rev> <local-rev>",
	Short: "Compare the content of two local commits",
	Long: `Run the equivalence check on two commits of the local kernel checkout and
print what differs once headers, line numbers and context are ignored.

Exits with status 1 when the commits differ.`,
	Args: cobra.ExactArgs(2),
	Run:  runCompare,
}

func runCompare(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	ctx := context.Background()
	repo := gitsrc.New(c.Config.Review.GitDir)

	reference, err := repo.Show(ctx, args[0])
	if err != nil {
		exitError("failed to read %s: %v", args[0], err)
	}
	candidate, err := repo.Show(ctx, args[1])
	if err != nil {
		exitError("failed to read %s: %v", args[1], err)
	}

	res, err := patch.CompareText(reference, candidate)
	if err != nil {
		exitError("%v", err)
	}

	if res.Empty() {
		color.New(color.FgGreen).Println("Commits are equivalent")
		return
	}
	printResidual(os.Stdout, res.Unified(args[0], args[1]))
	exitCode = 1
}

// printResidual writes unified diff text with added lines in green and
// removed lines in red.
func printResidual(w io.Writer, text string) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)

	for _, line := range strings.SplitAfter(text, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprint(w, line)
		case strings.HasPrefix(line, "@@"):
			cyan.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			green.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			red.Fprint(w, line)
		default:
			fmt.Fprint(w, line)
		}
	}
}
