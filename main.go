package main

import "cohort-copilot/cmd"

func main() {
	cmd.Execute()
}
