package main

import "github.com/claudish/claudish/cmd"

func main() {
	cmd.Execute()
}
