package main

import "github.com/driftlock/depot/cmd/depot/cmd"

func main() {
	cmd.Execute()
}
