// Package main is the phishcatch entry point.
package main

import "phishcatch/cmd"

func main() {
	cmd.Execute()
}
