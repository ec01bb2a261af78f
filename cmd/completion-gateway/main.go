// Command completion-gateway serves POST /generate in front of OpenRouter.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
