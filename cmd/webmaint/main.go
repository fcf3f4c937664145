// Package main is the entry point for webmaint.
package main

import (
	"os"
	_ "time/tzdata"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
