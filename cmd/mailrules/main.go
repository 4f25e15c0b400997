package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshsymonds/mailrules/internal/cli"
	"github.com/joshsymonds/mailrules/internal/runtime"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	cancel()
	if err != nil {
		runtime.DefaultLogger().Error("mailrules failed", "error", err)
		os.Exit(1)
	}
}
