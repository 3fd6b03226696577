package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/sensor_pipeline/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (optional, bench defaults when empty)")
	flag.Parse()

	log.Println("starting sensor-pipeline standalone run (synthetic sensors, no broker)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunStandalone(ctx, *configPath); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("fatal: %v", err)
	}
}
