// Command vstorage runs the block storage engine's HTTP and gRPC
// front-ends, or talks to a running node for operational commands.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
