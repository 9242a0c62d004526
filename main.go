package main

import "github.com/endorses/upstreamctl/cmd"

func main() {
	cmd.Execute()
}
