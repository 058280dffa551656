// Command happysentences serves the Happy Sentences API and offers the same
// operations from the command line: generating sentences, speaking them on
// the host, managing the daily library and playing premium voice clips.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "happysentences: %v\n", err)
		os.Exit(1)
	}
}
