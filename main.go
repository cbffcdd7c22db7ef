// The main package for the dualsub executable.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/dualsub-crawler/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.Execute(ctx)
}
