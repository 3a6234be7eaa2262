package main

import (
	"octowatcher/internal/cli"
)

func main() {
	cli.Execute()
}
