package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codementor/internal/gateway/app"
)

const shutdownGrace = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, os.Args[1:])
	if err != nil {
		log.Fatalf("codementor gateway: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Start() }()

	exit := 0
	select {
	case <-ctx.Done():
		log.Println("codementor gateway: signal received, draining requests")
	case err := <-serveErr:
		if err != nil {
			log.Printf("codementor gateway: serve: %v", err)
			exit = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Printf("codementor gateway: shutdown: %v", err)
		exit = 1
	}
	log.Println("codementor gateway: stopped")
	if exit != 0 {
		cancel()
		stop()
		os.Exit(exit)
	}
}
