package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

func main() {
	root, cleanup := newRootCmd()
	err := root.Execute()
	cleanup()

	if err != nil {
		var shown *reportedError
		if !errors.As(err, &shown) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
