package main

import "assaycore/internal/cli"

func main() {
	cli.Execute()
}
