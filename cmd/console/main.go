package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/sensor_pipeline/internal/app"
)

func main() {
	configPath := flag.String("config", "./sensor_pipeline.conf", "path to configuration file")
	flag.Parse()

	log.Println("starting sensor-pipeline console (MQTT subscriber)")

	if err := app.RunConsole(*configPath); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
