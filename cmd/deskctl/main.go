package main

import (
	"os"

	"github.com/spec-kit/support-desk/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Stderr))
}
