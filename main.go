package main

import "github.com/voltgrid/ocppd/cmd"

func main() {
	cmd.Execute()
}
