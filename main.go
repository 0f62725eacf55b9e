package main

import "github.com/agentic-research/facetfs/cmd"

func main() {
	cmd.Execute()
}
