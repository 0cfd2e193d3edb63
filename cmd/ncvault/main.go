package main

import (
	"os"

	"ncvault/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
