package main

import "github.com/mcoot/dealgame/internal/cli"

func main() {
	cli.Execute()
}
