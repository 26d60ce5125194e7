// Command patentgov runs governed patent chunking, embedding builds and
// retrieval evaluation.
package main

import (
	"os"

	"github.com/custodia-labs/patentgov/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
