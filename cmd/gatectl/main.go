package main

import "go.halcyon.sh/gatekeep/cmd/gatectl/cmd"

func main() {
	cmd.Execute()
}
