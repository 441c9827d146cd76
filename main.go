package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	ctx := shutdownContext(context.Background())

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, errStatusMismatch) || errors.Is(err, errAssertionFailed) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}

		exitOnError(err)
	}
}
