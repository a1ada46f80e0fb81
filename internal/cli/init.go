package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/patchtroll/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default configuration file",
	Long: `Write ` + config.ConfigFile + ` with the default settings into dir, or the
current directory. Credentials are better kept in GERRIT_USERNAME and
GERRIT_PASSWORD than in the file.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runInit,
}

var initForce bool

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	path := filepath.Join(dir, config.ConfigFile)

	if err := writeDefaultConfig(path, initForce); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Wrote %s\n", path)
}

func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return config.Default().Save(path)
}
