package main

import "github.com/reginaldwlsnnn87-max/inventory-app-sub003/services/autopilotd/cli"

func main() {
	cli.Execute()
}
