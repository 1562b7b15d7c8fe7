// Command txagg ranks keys by total amount across large transaction files.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/txagg/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
