package main

import "bitbox/cmd"

func main() {
	cmd.Execute()
}
