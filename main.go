package main

import "fetchq/cmd"

func main() {
	cmd.Run()
}
