// Command reachscan is a supply-chain reachability analyzer: it resolves
// an application's dependency lockfiles, parses the reachable source of
// every dependency it can locate, and reports which advisories are
// actually reachable from the application's own entrypoints. Grounded on
// gorisk's cmd/gorisk bare-switch subcommand dispatcher.
package main

import (
	"fmt"
	"os"

	"github.com/1homsi/reachscan/cmd/reachscan/analyze"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "analyze":
		os.Exit(analyze.Run(os.Args[2:]))
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `reachscan — supply-chain reachability analyzer

Usage:
  reachscan analyze [flags] <application-root>
  reachscan version`)
}
