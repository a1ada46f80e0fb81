package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/patchtroll/internal/core"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show review statistics",
	Long:  `Print the counters kept in the statistics checkpoint.`,
	Args:  cobra.NoArgs,
	Run:   runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	path := c.Config.Daemon.StatsFile
	if path == "" {
		exitError("no statistics file configured (set daemon.stats_file or pass --stats-file)")
	}

	stats, created, err := core.LoadStats(path)
	if err != nil {
		exitError("%v", err)
	}
	if created {
		fmt.Printf("No statistics recorded in %s yet\n", path)
		return
	}
	fmt.Println(stats.Summary())
}
