package main

import (
	"context"
	"os"

	"github.com/northbeam-ai/sitegate/pkg/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
