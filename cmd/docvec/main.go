// Command docvec manages semantic document collections.
//
// Usage:
//
//	docvec [--config docvec.yaml] <command> [args]
//
// Commands:
//
//	collections  - create and list collections
//	insert       - embed and store JSON-lines payloads
//	get          - fetch a document by id
//	update       - replace a document payload
//	delete       - remove documents
//	search       - similarity search over one or more collections
//	changes      - read the SQLite change log of a collection
package main

import (
	"fmt"
	"os"

	"github.com/viant/docvec/cmd/docvec/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
