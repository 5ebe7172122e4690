// Command diracx is the installation's HTTP server and operational CLI
// (serve/migrate/genkeys), grounded on dex's cmd/dex entrypoint
// (cmd/dex/poke.go's commandRoot/main split).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func commandRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "diracx",
		Short: "diracx control-plane server",
	}
	root.AddCommand(commandServe())
	root.AddCommand(commandMigrate())
	root.AddCommand(commandGenKeys())
	return root
}

func main() {
	if err := commandRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
