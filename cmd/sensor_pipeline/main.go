// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

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
	configPath := flag.String("config", "./sensor_pipeline.conf", "path to configuration file")
	flag.Parse()

	log.Println("starting sensor-pipeline daemon (sensors → correction → MQTT)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunPipeline(ctx, *configPath); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("fatal: %v", err)
	}
	log.Println("sensor-pipeline stopped")
}
