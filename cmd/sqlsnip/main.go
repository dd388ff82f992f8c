// Command sqlsnip serves the snippet workspace over HTTP and manages the
// snippet collection from the terminal.
package main

import (
	"os"
)

var version = "dev"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), "%v", err)
		os.Exit(1)
	}
}
