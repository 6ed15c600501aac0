package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/timely-app/timelyd/internal/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	server := app.NewServer(ctx)
	server.Serve()
}
