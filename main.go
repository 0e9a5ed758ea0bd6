package main

import (
	"context"
	"os"

	"github.com/conneroisu/volki/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
