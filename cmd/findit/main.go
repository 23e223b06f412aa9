package main

import "findit/internal/cli"

func main() {
	cli.Execute()
}
