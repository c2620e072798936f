package main

import (
	"os"

	"github.com/alvarorichard/Gostream/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
