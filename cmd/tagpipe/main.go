package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Interrupt already told the user everything they need.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "tagpipe:", err)
		}
		os.Exit(1)
	}
}
