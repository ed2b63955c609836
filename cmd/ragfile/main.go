package main

import "github.com/jpl-au/ragfile/cmd/ragfile/cmd"

func main() {
	cmd.Execute()
}
