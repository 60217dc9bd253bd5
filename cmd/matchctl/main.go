package main

import "github.com/rl-arena/ranked-orchestrator/internal/cli"

func main() {
	cli.Execute()
}
