package main

import "prestige_server/cmd"

func main() {
	cmd.Execute()
}
