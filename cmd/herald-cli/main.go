package main

import "github.com/nfrund/herald/cmd/herald-cli/cmd"

func main() {
	cmd.Execute()
}
