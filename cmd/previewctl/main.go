package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/numberone-ai/previewctl/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := app.Execute(ctx, app.Build, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
