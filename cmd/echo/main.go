// Command echo is a tiny non-core example client/server exercising the
// transport package's Stream/Connection API end to end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "echo",
		Short: "A minimal QUIC echo client/server built on the transport package",
	}
	root.AddCommand(newServerCommand())
	root.AddCommand(newClientCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
