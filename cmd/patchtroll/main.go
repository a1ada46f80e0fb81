// Command patchtroll reviews kernel changes on a Gerrit host against the
// upstream commits and mailed patches they claim to derive from.
package main

import (
	"os"

	"github.com/kilupskalvis/patchtroll/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
