package main

import (
	"os"

	"github.com/Aurelien590/StabilityMatrix/internal/cli"
)

func main() { os.Exit(cli.Main()) }
