package main

import "github.com/portal-orchestrator/cmd"

func main() {
	cmd.Execute()
}
