// Command snippime runs the Snippime API server and its maintenance tasks.
//
// The main package stays minimal: it reads configuration, builds the logger
// and hands off to internal/server or the storage layer. All behaviour lives
// in the internal packages.
//
//	snippime serve     start the HTTP server
//	snippime rescore   recompute every snippet's hot score
//	snippime reindex   rebuild the on-disk search index from the database
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
