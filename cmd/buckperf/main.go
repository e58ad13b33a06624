// Package main is the entry point for the buckperf CLI.
package main

import "buckperf/internal/cli"

func main() {
	cli.Execute()
}
