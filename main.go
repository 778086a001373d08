package main

import "github.com/revosurge/adwatch/cmd"

func main() {
	cmd.Execute()
}
